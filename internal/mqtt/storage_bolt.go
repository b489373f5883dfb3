package mqtt

import (
	"encoding/json"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var sessionBucket = []byte("mqtt_sessions")

// BoltEngine is a session storage engine persisting to a bbolt file, so
// sessions survive a process restart the way a clean_start=false client
// expects. One JSON document per client ID.
type BoltEngine struct {
	db *bolt.DB
}

type boltSession struct {
	SendQueue  []PendingPacket `json:"send_queue"`
	LocalQueue []PendingPacket `json:"local_queue"`
	Will       *PendingPacket  `json:"will,omitempty"`
	Connected  bool            `json:"connected"`
}

// NewBoltEngine opens (or creates) the session bucket in db.
func NewBoltEngine(db *bolt.DB) (*BoltEngine, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "create session bucket")
	}
	return &BoltEngine{db: db}, nil
}

func (e *BoltEngine) load(tx *bolt.Tx, clientID string) (*boltSession, bool, error) {
	raw := tx.Bucket(sessionBucket).Get([]byte(clientID))
	if raw == nil {
		return &boltSession{}, false, nil
	}
	var s boltSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, errors.Wrap(err, "decode session")
	}
	return &s, true, nil
}

func (e *BoltEngine) store(tx *bolt.Tx, clientID string, s *boltSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	return tx.Bucket(sessionBucket).Put([]byte(clientID), raw)
}

// update runs fn against clientID's session document inside one write
// transaction. fn receives whether the document existed.
func (e *BoltEngine) update(clientID string, fn func(s *boltSession, existed bool) error) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		s, existed, err := e.load(tx, clientID)
		if err != nil {
			return err
		}
		if err := fn(s, existed); err != nil {
			return err
		}
		return e.store(tx, clientID, s)
	})
}

func (e *BoltEngine) GetSession(clientID string, cleanStart bool) (Result, error) {
	err := e.db.Update(func(tx *bolt.Tx) error {
		s, existed, err := e.load(tx, clientID)
		if err != nil {
			return err
		}
		if cleanStart || !existed {
			s = &boltSession{}
		}
		s.Connected = true
		return e.store(tx, clientID, s)
	})
	if err != nil {
		return ResultInternalError, err
	}
	return ResultOK, nil
}

func (e *BoltEngine) DeleteSession(clientID string) (Result, error) {
	err := e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Delete([]byte(clientID))
	})
	if err != nil {
		return ResultInternalError, err
	}
	return ResultDeleted, nil
}

func (e *BoltEngine) ReceivePacket(clientID string, pkt PendingPacket) (Result, error) {
	err := e.update(clientID, func(s *boltSession, _ bool) error {
		s.LocalQueue = append(s.LocalQueue, pkt)
		return nil
	})
	if err != nil {
		return ResultInternalError, err
	}
	return ResultOK, nil
}

func (e *BoltEngine) SendPacket(clientID string, pkt PendingPacket) (Result, error) {
	err := e.update(clientID, func(s *boltSession, _ bool) error {
		s.SendQueue = append(s.SendQueue, pkt)
		return nil
	})
	if err != nil {
		return ResultInternalError, err
	}
	return ResultOK, nil
}

func (e *BoltEngine) IterateSendQueue(clientID string, fn func(PendingPacket) bool) (Result, error) {
	var snapshot []PendingPacket
	err := e.db.View(func(tx *bolt.Tx) error {
		s, _, err := e.load(tx, clientID)
		if err != nil {
			return err
		}
		snapshot = append(snapshot, s.SendQueue...)
		return nil
	})
	if err != nil {
		return ResultInternalError, err
	}
	for _, pkt := range snapshot {
		if !fn(pkt) {
			break
		}
	}
	return ResultOK, nil
}

func (e *BoltEngine) AckSendQueue(clientID string, id uint16) (Result, error) {
	err := e.update(clientID, func(s *boltSession, _ bool) error {
		for i, pkt := range s.SendQueue {
			if pkt.PacketID == id {
				s.SendQueue = append(s.SendQueue[:i], s.SendQueue[i+1:]...)
				break
			}
		}
		return nil
	})
	if err != nil {
		return ResultInternalError, err
	}
	return ResultOK, nil
}

func (e *BoltEngine) Heartbeat(clientID string) (Result, error) {
	var existed bool
	err := e.db.View(func(tx *bolt.Tx) error {
		_, ex, err := e.load(tx, clientID)
		existed = ex
		return err
	})
	if err != nil {
		return ResultInternalError, err
	}
	if !existed {
		return ResultSessionError, nil
	}
	return ResultOK, nil
}

func (e *BoltEngine) NotifyDisconnect(clientID string) (Result, error) {
	var existed bool
	err := e.update(clientID, func(s *boltSession, ex bool) error {
		existed = ex
		s.Connected = false
		return nil
	})
	if err != nil {
		return ResultInternalError, err
	}
	if !existed {
		return ResultSessionError, nil
	}
	return ResultOK, nil
}

func (e *BoltEngine) IterateAndClearLocalDelivery(clientID string, fn func(PendingPacket)) (Result, error) {
	var queue []PendingPacket
	err := e.update(clientID, func(s *boltSession, _ bool) error {
		queue = s.LocalQueue
		s.LocalQueue = nil
		return nil
	})
	if err != nil {
		return ResultInternalError, err
	}
	for _, pkt := range queue {
		fn(pkt)
	}
	return ResultOK, nil
}

func (e *BoltEngine) WillPublish(clientID string) (PendingPacket, bool, Result, error) {
	var will *PendingPacket
	err := e.db.View(func(tx *bolt.Tx) error {
		s, _, err := e.load(tx, clientID)
		if err != nil {
			return err
		}
		will = s.Will
		return nil
	})
	if err != nil {
		return PendingPacket{}, false, ResultInternalError, err
	}
	if will == nil {
		return PendingPacket{}, false, ResultOK, nil
	}
	return *will, true, ResultOK, nil
}

func (e *BoltEngine) SetWill(clientID string, will PendingPacket) {
	_ = e.update(clientID, func(s *boltSession, _ bool) error {
		s.Will = &will
		return nil
	})
}
