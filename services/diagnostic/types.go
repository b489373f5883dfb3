package diagnostic

type Diagnostic interface {
	Diag(...interface{}) error
}

type Service interface {
	Open() error
	Close() error
	NewDiagnostic(Diagnostic, ...interface{}) Diagnostic
	SubscribeAll(subscr Subscriber) error
	// Handle fans one event's key/value lists out to every subscriber.
	Handle(keyvalList ...[]interface{}) error
}

type Subscriber interface {
	Handle(...[]interface{}) error
}
