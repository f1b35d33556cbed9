package server

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type trace struct{ events []string }

func (tr *trace) component(name string, startErr error) Component {
	return Component{
		Name: name,
		Start: func(context.Context) error {
			tr.events = append(tr.events, "start "+name)
			return startErr
		},
		Stop: func(context.Context) error {
			tr.events = append(tr.events, "stop "+name)
			return nil
		},
	}
}

func TestRunStartsInOrderAndStopsInReverse(t *testing.T) {
	tr := &trace{}
	app := New(nil, time.Second, tr.component("store", nil), tr.component("queue", nil))
	app.Add(tr.component("http", nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"start store", "start queue", "start http", "stop http", "stop queue", "stop store"}
	if !reflect.DeepEqual(tr.events, want) {
		t.Fatalf("events = %v", tr.events)
	}
}

func TestRunUnwindsOnStartFailure(t *testing.T) {
	tr := &trace{}
	boom := errors.New("boom")
	app := New(nil, time.Second, tr.component("store", nil), tr.component("kafka", boom), tr.component("http", nil))

	err := app.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	want := []string{"start store", "start kafka", "stop store"}
	if !reflect.DeepEqual(tr.events, want) {
		t.Fatalf("events = %v", tr.events)
	}
}
