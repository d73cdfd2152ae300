package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/avx-core/internal/device"
)

// ErrObjectNotFound is returned for object IDs the table never issued.
var ErrObjectNotFound = errors.New("remote: object not found")

// ObjectTable exports local devices under opaque object IDs.
//
// Exporting the same device twice returns the same object ID, so a handle
// stays valid for the life of the process.
type ObjectTable struct {
	baseURL string
	owner   string

	mu       sync.RWMutex
	objects  map[string]device.Device
	byDevice map[string]string
}

// NewObjectTable creates a table whose URIs start with baseURL + APIPrefix.
// owner is stamped on every handle (normally the controller's registered name).
func NewObjectTable(baseURL, owner string) *ObjectTable {
	return &ObjectTable{
		baseURL:  strings.TrimRight(baseURL, "/"),
		owner:    owner,
		objects:  make(map[string]device.Device),
		byDevice: make(map[string]string),
	}
}

// SetOwner changes the owner stamped on handles exported from now on.
func (t *ObjectTable) SetOwner(owner string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.owner = owner
}

// Export returns a handle for dev, issuing an object ID on first use.
func (t *ObjectTable) Export(dev device.Device) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.byDevice[dev.ID()]
	if !ok || t.objects[id] != dev {
		id = uuid.NewString()
		t.objects[id] = dev
		t.byDevice[dev.ID()] = id
	}

	return &Handle{
		URI:      t.objectURI(id),
		DeviceID: dev.ID(),
		Owner:    t.owner,
	}
}

func (t *ObjectTable) objectURI(objectID string) string {
	return fmt.Sprintf("%s%s/objects/%s", t.baseURL, APIPrefix, objectID)
}

// Lookup returns the device exported under objectID.
func (t *ObjectTable) Lookup(objectID string) (device.Device, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dev, ok := t.objects[objectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, objectID)
	}
	return dev, nil
}

// Len returns the number of exported objects.
func (t *ObjectTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.objects)
}

// Invoke calls method on the device exported under objectID.
// Devices that do not implement device.Invoker yield device.ErrMethodNotSupported.
func (t *ObjectTable) Invoke(ctx context.Context, objectID, method string, args json.RawMessage) (json.RawMessage, error) {
	dev, err := t.Lookup(objectID)
	if err != nil {
		return nil, err
	}

	inv, ok := dev.(device.Invoker)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", device.ErrMethodNotSupported, method, dev.ID())
	}
	return inv.Invoke(ctx, method, args)
}
