package storage

// ReadOnlyTx provides read access to a storage transaction.
type ReadOnlyTx interface {
	Get(key string) (*KeyValue, error)
	Exists(key string) (bool, error)
	List(prefix string) ([]*KeyValue, error)
}

// Tx provides read/write access to a storage transaction.
type Tx interface {
	ReadOnlyTx
	Put(key string, value []byte) error
	Delete(key string) error
}

// DoView implements a basic, non-atomic View using the store's own methods
// as the transaction. It is used by implementations that do not have a
// native transaction type, such as MemStore.
func DoView(s Tx, f func(tx ReadOnlyTx) error) error {
	return f(s)
}

// DoUpdate implements a basic, non-atomic Update using the store's own
// methods as the transaction: writes made by f stay in place even when f
// returns an error.
func DoUpdate(s Tx, f func(tx Tx) error) error {
	return f(s)
}
