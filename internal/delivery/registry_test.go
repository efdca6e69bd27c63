// internal/delivery/registry_test.go
package delivery

import (
	"testing"
)

func TestDeliverRoutesByPrefix(t *testing.T) {
	r := NewRegistry()

	var gotKey, gotMsg string
	r.Register("telegram:", func(key, msg string) error {
		gotKey, gotMsg = key, msg
		return nil
	})
	r.Register("stdout:", func(key, msg string) error {
		t.Error("wrong handler invoked")
		return nil
	})

	if err := r.Deliver("telegram:12345", "morning digest"); err != nil {
		t.Fatal(err)
	}
	if gotKey != "telegram:12345" || gotMsg != "morning digest" {
		t.Errorf("handler got %q / %q", gotKey, gotMsg)
	}
}

func TestDeliverUnknownPrefix(t *testing.T) {
	r := NewRegistry()
	r.Register("telegram:", func(key, msg string) error { return nil })

	if err := r.Deliver("carrier-pigeon:7", "coo"); err == nil {
		t.Error("expected error for unregistered prefix")
	}
}
