package ca

import "fmt"

// Runs a single cryptographic operation. A failure is logged and
// wrapped with the operation name so the pipeline aborts with one
// diagnostic identifying the failing step and its cause. These are
// deterministic local operations; nothing retries.
func (ca *CA) run(operation string, fn func() error) error {
	ca.logger.Debugf("certificate-authority: %s", operation)
	if err := fn(); err != nil {
		ca.logger.Error(err)
		return fmt.Errorf("%w: %s: %v", ErrOperationFailed, operation, err)
	}
	return nil
}
