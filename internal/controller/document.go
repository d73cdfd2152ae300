package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/avx-core/internal/device"
)

// Document is the controller document: the devices to create and the
// controller's options. JSON documents are valid YAML and parse the same way.
type Document struct {
	Devices []device.Description `yaml:"devices" json:"devices"`
	Options *Options             `yaml:"options" json:"options,omitempty"`
}

// Options is the options block of a controller document.
type Options struct {
	ControllerID string   `yaml:"controllerID" json:"controllerID,omitempty"`
	Slaves       []string `yaml:"slaves" json:"slaves,omitempty"`
	HTTP         bool     `yaml:"http" json:"http,omitempty"`
}

// ParseDocument decodes a controller document from r.
// Any decoding failure wraps ErrConfig.
func ParseDocument(r io.Reader) (*Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrConfig)
		}
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return &doc, nil
}

// LoadConfig reads the controller document at path. See LoadConfigFrom.
func (c *Controller) LoadConfig(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening controller document: %w", err)
	}
	defer f.Close()
	return c.LoadConfigFrom(ctx, f)
}

// LoadConfigFrom applies a controller document.
//
// Devices are added in document order, then the controller ID is set, then
// each slave is added in order and finally the http flag is recorded.
// Unreachable or incompatible slaves are logged and skipped. A malformed
// document or a device that cannot be added aborts the load; the error is
// logged with full detail and returned, leaving whatever was applied before
// it in place.
//
// Returns:
//   - error: Wrapping ErrConfig, or a device error
func (c *Controller) LoadConfigFrom(ctx context.Context, r io.Reader) error {
	doc, err := ParseDocument(r)
	if err != nil {
		c.logger.Exception("cannot parse controller document", err)
		return err
	}

	for _, desc := range doc.Devices {
		if err := c.AddDevice(ctx, desc); err != nil {
			err = fmt.Errorf("%w: device %q: %w", ErrConfig, desc.DeviceID, err)
			c.logger.Exception("cannot load controller document", err)
			return err
		}
	}

	if doc.Options == nil {
		c.logger.Info("controller document loaded", "devices", len(doc.Devices))
		return nil
	}

	if doc.Options.ControllerID != "" {
		c.SetControllerID(doc.Options.ControllerID)
	}

	for _, id := range doc.Options.Slaves {
		//nolint:errcheck // AddSlave logs its own failures; loading continues
		c.AddSlave(ctx, id)
	}

	c.SetHTTPEnabled(doc.Options.HTTP)

	c.logger.Info("controller document loaded",
		"devices", len(doc.Devices),
		"controller_id", doc.Options.ControllerID,
		"slaves", len(c.federation.Slaves()),
		"http", doc.Options.HTTP,
	)
	return nil
}
