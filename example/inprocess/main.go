// Demonstrates embedding the multiplexer in-process: a simulated
// accelerometer and gyroscope, one client connection subscribed to the
// accelerometer only, events decoded straight off the connection's channel.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"sensormux/pkg/sensormux"
)

const demoConfig = `
service:
  min_period: 10ms
  channel_buffer_bytes: 8192
hardware:
  sensors:
    - handle: 1
      name: accelerometer
      vendor: acme
      min_delay: 10ms
      frequency: 1.0
    - handle: 2
      name: gyroscope
      vendor: acme
      min_delay: 5ms
metrics:
  addr: ":9100"
`

func main() {
	dir, err := os.MkdirTemp("", "sensormux-demo")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(demoConfig), 0o600); err != nil {
		log.Fatal(err)
	}

	cfg, err := sensormux.LoadConfig(path)
	if err != nil {
		log.Fatal(err)
	}
	rt, err := sensormux.NewRuntime(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Shutdown(context.Background())

	svc := rt.Service()
	for _, d := range svc.SensorList() {
		fmt.Printf("sensor %d: %s (%s), max %.0fHz\n", d.Handle, d.Name, d.Vendor, d.MaxRateHz())
	}

	conn, err := svc.CreateConnection(1000)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	if err := conn.EnableSensor(1); err != nil {
		log.Fatal(err)
	}
	if err := conn.SetEventRate(1, 50*time.Millisecond); err != nil {
		log.Fatal(err)
	}

	reader, ok := conn.Channel().(io.Reader)
	if !ok {
		log.Fatal("channel is not readable in-process")
	}

	buf := make([]byte, 64*sensormux.EventWireSize)
	deadline := time.After(2 * time.Second)
	received := 0
	for received < 10 {
		select {
		case <-deadline:
			log.Fatalf("timed out after %d events", received)
		default:
		}
		n, err := reader.Read(buf)
		if err != nil {
			log.Fatal(err)
		}
		if n == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		for off := 0; off+sensormux.EventWireSize <= n; off += sensormux.EventWireSize {
			ev, err := sensormux.DecodeEvent(buf[off:])
			if err != nil {
				log.Fatal(err)
			}
			fmt.Printf("handle=%d t=%d data=<%.3f,%.3f,%.3f>\n",
				ev.Handle, ev.Timestamp, ev.Data[0], ev.Data[1], ev.Data[2])
			received++
		}
	}
}
