package exception

import "github.com/yanun0323/errors"

// Connector errors
var (
	ErrConnectorNilCallback  = errors.New("connector: nil callback")
	ErrConnectorNilTransport = errors.New("connector: nil transport")
	ErrConnectorNilFactory   = errors.New("connector: nil stream factory")
	ErrConnectorAlreadyRun   = errors.New("connector: job already run")
	ErrConnectorStopped      = errors.New("connector: job stopped")
	ErrConnectorNoAddress    = errors.New("connector: empty address")
)
