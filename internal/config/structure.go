package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// documentSchema describes the shape of a sweep file. It rejects unknown keys
// so that a misspelt option fails loudly instead of silently taking its
// default. Value rules live in Validate.
const documentSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string"},
    "outputDir": {"type": "string"},
    "target": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "server": {"type": "string"},
        "path": {"type": "string"}
      }
    },
    "remote": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "host": {"type": "string"},
        "port": {"type": "integer"},
        "user": {"type": "string"},
        "keyFile": {"type": "string"},
        "knownHostsFile": {"type": "string"},
        "connectTimeout": {"$ref": "#/$defs/duration"}
      }
    },
    "container": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "id": {"type": "string"},
        "runtime": {"type": "string"},
        "shell": {"type": "string"}
      }
    },
    "services": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string"},
          "start": {"type": "string"},
          "stop": {"type": "string"},
          "url": {"type": "string"}
        }
      }
    },
    "algorithms": {"type": "array", "items": {"type": "string"}},
    "loads": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "requests": {"type": "integer"},
          "concurrency": {"type": "integer"}
        }
      }
    },
    "benchmark": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "binary": {"type": "string"},
        "args": {"type": "array", "items": {"type": "string"}}
      }
    },
    "congestion": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "parameter": {"type": "string"},
        "skipVerify": {"type": "boolean"}
      }
    },
    "retry": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "maxRetry": {"type": "integer"},
        "delay": {"$ref": "#/$defs/duration"}
      }
    },
    "package": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "compress": {"type": "boolean"},
        "archive": {"type": "string"},
        "archiver": {"type": "string"},
        "archiveCommand": {"type": "string"},
        "upload": {"type": "boolean"},
        "uploader": {"type": "string"},
        "uploadCommand": {"type": "string"},
        "bucket": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "name": {"type": "string"},
            "region": {"type": "string"},
            "prefix": {"type": "string"},
            "path": {"type": "string"},
            "awsKey": {"type": "string"},
            "awsSecret": {"type": "string"}
          }
        }
      }
    },
    "ledger": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "disabled": {"type": "boolean"},
        "path": {"type": "string"}
      }
    }
  },
  "$defs": {
    "duration": {"type": ["string", "integer"]}
  }
}`

var compiledSchema = jsonschema.MustCompileString("sweep.schema.json", documentSchema)

// CheckStructure checks a decoded document against the sweep file schema.
// doc must hold JSON types, as produced by encoding/json.
func CheckStructure(doc interface{}) error {
	err := compiledSchema.Validate(doc)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err
	}

	errs := &ValidationErrors{}
	collectLeaves(verr, errs)
	return errs
}

func collectLeaves(v *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(v.Causes) == 0 {
		errs.Add(fieldName(v.InstanceLocation), v.Message)
		return
	}
	for _, c := range v.Causes {
		collectLeaves(c, errs)
	}
}

// fieldName turns a JSON pointer such as /services/0/name into services[0].name.
func fieldName(pointer string) string {
	if pointer == "" || pointer == "/" {
		return ""
	}

	var sb strings.Builder
	for _, part := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		if part != "" && strings.Trim(part, "0123456789") == "" {
			sb.WriteString("[" + part + "]")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(".")
		}
		sb.WriteString(part)
	}
	return sb.String()
}

// normalize re-encodes a YAML-decoded value into plain JSON types.
func normalize(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("error reading config document: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("error reading config document: %w", err)
	}
	return out, nil
}
