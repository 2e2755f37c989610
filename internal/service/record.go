package service

import "github.com/google/uuid"

// sensorRecord tracks which connections currently want a handle active. A
// record exists only while the sensor is hardware-activated; it is dropped
// when the last subscriber leaves.
//
// Connections are held by identity and may be torn down concurrently with
// dispatch; holders check Connection.alive before use and prune dead entries
// opportunistically.
type sensorRecord struct {
	conns map[uuid.UUID]*Connection
}

func newSensorRecord(c *Connection) *sensorRecord {
	return &sensorRecord{conns: map[uuid.UUID]*Connection{c.id: c}}
}

// add reports whether the connection was not already a member.
func (r *sensorRecord) add(c *Connection) bool {
	if _, ok := r.conns[c.id]; ok {
		return false
	}
	r.conns[c.id] = c
	return true
}

// remove reports whether the record is empty afterwards.
func (r *sensorRecord) remove(c *Connection) bool {
	delete(r.conns, c.id)
	return len(r.conns) == 0
}

func (r *sensorRecord) size() int { return len(r.conns) }
