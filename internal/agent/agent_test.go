package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skystation-io/skystation/internal/agent/fetch"
	"github.com/skystation-io/skystation/internal/agent/storage"
	"github.com/skystation-io/skystation/internal/agent/updater"
	"github.com/skystation-io/skystation/pkg/log"
	"github.com/skystation-io/skystation/pkg/mqtt"
	"github.com/skystation-io/skystation/pkg/mqtt/topic"
	"github.com/skystation-io/skystation/pkg/options"
)

// fakeClient implements mqtt.Client in memory, recording publishes in order.
type fakeClient struct {
	mu       sync.Mutex
	events   *[]string
	messages []fakeMessage
	handler  mqtt.MessageHandler
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (c *fakeClient) Start(ctx context.Context) error           { return nil }
func (c *fakeClient) AwaitConnection(ctx context.Context) error { return nil }
func (c *fakeClient) Disconnect(ctx context.Context)            {}

func (c *fakeClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, fakeMessage{topic: topic, payload: payload})
	if c.events != nil {
		*c.events = append(*c.events, "publish")
	}
	return nil
}

func (c *fakeClient) Subscribe(ctx context.Context, topic string, qos int, handler mqtt.MessageHandler) error {
	c.handler = handler
	return nil
}

func (c *fakeClient) Unsubscribe(ctx context.Context, topic string) error { return nil }

func (c *fakeClient) acks(t *testing.T, builder *topic.Builder, deviceID string) []Ack {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Ack
	for _, m := range c.messages {
		if m.topic != builder.CommandAck(deviceID) {
			continue
		}
		var a Ack
		if err := json.Unmarshal(m.payload, &a); err != nil {
			t.Fatalf("bad ack payload %q: %v", m.payload, err)
		}
		out = append(out, a)
	}
	return out
}

// fakeHAL records hardware calls into the shared event slice.
type fakeHAL struct {
	events    *[]string
	ledErr    error
	rebooted  bool
	ledToggle int
}

func (h *fakeHAL) DeviceID() string { return "test-device" }

func (h *fakeHAL) Reboot() error {
	h.rebooted = true
	if h.events != nil {
		*h.events = append(*h.events, "reboot")
	}
	return nil
}

func (h *fakeHAL) ToggleLED() error {
	if h.ledErr != nil {
		return h.ledErr
	}
	h.ledToggle++
	return nil
}

// recordingFetcher serves relPath -> content and counts calls.
type recordingFetcher struct {
	content map[string][]byte
	calls   int
}

func (f *recordingFetcher) Fetch(ctx context.Context, relPath string) ([]byte, error) {
	f.calls++
	if data, ok := f.content[relPath]; ok {
		return data, nil
	}
	return nil, fetch.ErrNotFound
}

func newTestAgent(t *testing.T, fetcher fetch.Fetcher, hw *fakeHAL, client *fakeClient) *Agent {
	t.Helper()
	store, err := storage.NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	opts := options.NewUpdateOptions()
	opts.MaxAttempts = 3
	opts.RetryBackoff = time.Millisecond
	return &Agent{
		deviceID: "dev1",
		client:   client,
		topics:   topic.NewBuilder("station/v1"),
		upd:      updater.New(fetcher, store, opts),
		store:    store,
		hw:       hw,
		commands: make(chan string, commandQueueSize),
		logger:   log.NewNopLogger(),
	}
}

func TestHandleUpdateOK(t *testing.T) {
	client := &fakeClient{}
	fetcher := &recordingFetcher{content: map[string][]byte{"modules/config.py": []byte("X=1\n")}}
	a := newTestAgent(t, fetcher, &fakeHAL{}, client)

	a.handle(context.Background(), "update-modules/config.py")

	got, err := os.ReadFile(filepath.Join(a.store.Root(), "modules", "config.py"))
	if err != nil {
		t.Fatalf("target not written: %v", err)
	}
	if string(got) != "X=1\n" {
		t.Errorf("target content %q, want %q", got, "X=1\n")
	}

	acks := client.acks(t, a.topics, a.deviceID)
	if len(acks) != 1 {
		t.Fatalf("got %d acks, want 1", len(acks))
	}
	want := Ack{Kind: "update", Path: "modules/config.py", Status: StatusOK, Attempts: 1}
	if acks[0] != want {
		t.Errorf("ack = %+v, want %+v", acks[0], want)
	}
}

func TestHandleUpdateNotFound(t *testing.T) {
	client := &fakeClient{}
	fetcher := &recordingFetcher{}
	a := newTestAgent(t, fetcher, &fakeHAL{}, client)

	a.handle(context.Background(), "update-missing.py")

	acks := client.acks(t, a.topics, a.deviceID)
	if len(acks) != 1 {
		t.Fatalf("got %d acks, want 1", len(acks))
	}
	if acks[0].Status != "error:NotFound" {
		t.Errorf("ack status %q, want error:NotFound", acks[0].Status)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch called %d times, want 1 (no retry on NotFound)", fetcher.calls)
	}
}

func TestHandleTraversalRejectedBeforeFetch(t *testing.T) {
	client := &fakeClient{}
	fetcher := &recordingFetcher{}
	a := newTestAgent(t, fetcher, &fakeHAL{}, client)

	a.handle(context.Background(), "update-../../etc/passwd")

	if fetcher.calls != 0 {
		t.Errorf("fetch called %d times for a rejected path, want 0", fetcher.calls)
	}
	acks := client.acks(t, a.topics, a.deviceID)
	if len(acks) != 1 {
		t.Fatalf("got %d acks, want 1", len(acks))
	}
	if acks[0].Kind != "update" || acks[0].Status != "error:PathInvalid" {
		t.Errorf("ack = %+v, want update/error:PathInvalid", acks[0])
	}
}

func TestHandleRebootAcksBeforeReset(t *testing.T) {
	var events []string
	client := &fakeClient{events: &events}
	hw := &fakeHAL{events: &events}
	a := newTestAgent(t, &recordingFetcher{}, hw, client)

	a.handle(context.Background(), "reboot")

	if !hw.rebooted {
		t.Fatal("reboot was not invoked")
	}
	if len(events) != 2 || events[0] != "publish" || events[1] != "reboot" {
		t.Errorf("event order %v, want ack publish before reboot", events)
	}
	acks := client.acks(t, a.topics, a.deviceID)
	if len(acks) != 1 || acks[0].Kind != "reboot" || acks[0].Status != StatusOK {
		t.Errorf("acks = %+v, want one ok reboot ack", acks)
	}
}

func TestHandleToggleLED(t *testing.T) {
	client := &fakeClient{}
	hw := &fakeHAL{}
	a := newTestAgent(t, &recordingFetcher{}, hw, client)

	a.handle(context.Background(), "toggleled")

	if hw.ledToggle != 1 {
		t.Errorf("LED toggled %d times, want 1", hw.ledToggle)
	}
	acks := client.acks(t, a.topics, a.deviceID)
	if len(acks) != 1 || acks[0].Status != StatusOK {
		t.Errorf("acks = %+v, want one ok ack", acks)
	}
}

func TestHandleToggleLEDHardwareError(t *testing.T) {
	client := &fakeClient{}
	hw := &fakeHAL{ledErr: errors.New("sysfs write failed")}
	a := newTestAgent(t, &recordingFetcher{}, hw, client)

	a.handle(context.Background(), "toggleled")

	acks := client.acks(t, a.topics, a.deviceID)
	if len(acks) != 1 || acks[0].Status != "error:HardwareError" {
		t.Errorf("acks = %+v, want error:HardwareError", acks)
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	client := &fakeClient{}
	a := newTestAgent(t, &recordingFetcher{}, &fakeHAL{}, client)

	a.handle(context.Background(), "self destruct")

	acks := client.acks(t, a.topics, a.deviceID)
	if len(acks) != 1 {
		t.Fatalf("got %d acks, want 1", len(acks))
	}
	if acks[0].Kind != "unknown" || acks[0].Status != "error:UnrecognizedCommand" {
		t.Errorf("ack = %+v, want unknown/error:UnrecognizedCommand", acks[0])
	}
}

// Commands queued while one is executing must run afterwards, in order.
func TestWorkerProcessesSerially(t *testing.T) {
	client := &fakeClient{}
	fetcher := &recordingFetcher{content: map[string][]byte{
		"a.py": []byte("a"),
		"b.py": []byte("b"),
	}}
	a := newTestAgent(t, fetcher, &fakeHAL{}, client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.runWorker(ctx)
		close(done)
	}()

	a.onCommand(ctx, "station/v1/command/dev1", []byte("update-a.py"))
	a.onCommand(ctx, "station/v1/command/dev1", []byte("update-b.py"))
	a.onCommand(ctx, "station/v1/command/dev1", []byte("toggleled"))

	deadline := time.After(2 * time.Second)
	for {
		if len(client.acks(t, a.topics, a.deviceID)) == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for acks")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	acks := client.acks(t, a.topics, a.deviceID)
	var order []string
	for _, ack := range acks {
		if ack.Path != "" {
			order = append(order, ack.Path)
		} else {
			order = append(order, ack.Kind)
		}
	}
	want := "a.py,b.py,toggleled"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("ack order %s, want %s", got, want)
	}
}
