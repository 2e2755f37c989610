package ports

// Metering is notified when a sensor goes physically active or inactive so
// power usage can be attributed to the client that asked for it. The uid is
// the original caller's identity captured at connection creation, never the
// service's own.
type Metering interface {
	NoteStartSensor(uid int32, handle int32) error
	NoteStopSensor(uid int32, handle int32) error
}
