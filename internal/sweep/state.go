package sweep

import "fmt"

// RemoteState tracks what the runner has done to the remote host: whether
// the global stop-all ran, which service is running and which algorithm was
// applied for it. Each transition checks its precondition, runs the action
// and only records the new state if the action succeeded.
type RemoteState struct {
	cleared   bool
	service   string
	algorithm string
}

// NewRemoteState returns the state of a host nothing is known about.
func NewRemoteState() *RemoteState {
	return &RemoteState{}
}

// Service is the running service, or "".
func (s *RemoteState) Service() string { return s.service }

// Algorithm is the algorithm applied while the current service runs, or "".
func (s *RemoteState) Algorithm() string { return s.algorithm }

// Cleared reports whether stop-all has completed.
func (s *RemoteState) Cleared() bool { return s.cleared }

// StopAll brings the host to a clean slate.
func (s *RemoteState) StopAll(do func() error) error {
	if s.service != "" {
		return fmt.Errorf("%w: stop-all while %s is running", ErrInvalidTransition, s.service)
	}
	if err := do(); err != nil {
		return err
	}
	s.cleared = true
	return nil
}

// StartService starts name. The host must be clean and idle.
func (s *RemoteState) StartService(name string, do func() error) error {
	if !s.cleared {
		return fmt.Errorf("%w: start %s before stop-all", ErrInvalidTransition, name)
	}
	if s.service != "" {
		return fmt.Errorf("%w: start %s while %s is running", ErrInvalidTransition, name, s.service)
	}
	if err := do(); err != nil {
		return err
	}
	s.service = name
	s.algorithm = ""
	return nil
}

// SetAlgorithm applies algo. A service must be running.
func (s *RemoteState) SetAlgorithm(algo string, do func() error) error {
	if s.service == "" {
		return fmt.Errorf("%w: set algorithm %s with no service running", ErrInvalidTransition, algo)
	}
	// the kernel value is unknown once a write was attempted
	s.algorithm = ""
	if err := do(); err != nil {
		return err
	}
	s.algorithm = algo
	return nil
}

// RequireActive checks that a cell for (service, algo) may run now.
func (s *RemoteState) RequireActive(service, algo string) error {
	if s.service != service {
		return fmt.Errorf("%w: run for %s while %q is running", ErrInvalidTransition, service, s.service)
	}
	if s.algorithm != algo {
		return fmt.Errorf("%w: run with %s while %q is active", ErrInvalidTransition, algo, s.algorithm)
	}
	return nil
}

// StopService stops name, which must be the running service.
func (s *RemoteState) StopService(name string, do func() error) error {
	if s.service != name {
		return fmt.Errorf("%w: stop %s while %q is running", ErrInvalidTransition, name, s.service)
	}
	if err := do(); err != nil {
		return err
	}
	s.service = ""
	s.algorithm = ""
	return nil
}
