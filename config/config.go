// Package config loads runtime configuration from YAML.
//
// A minimal file:
//
//	workers: 4
//	channel:
//	  capacity: 128
//	  backpressure: fail
//	numeric: strict
//	log:
//	  level: debug
//
// Omitted keys keep their Default values. Unknown keys are rejected.
package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/js-runtime/buffer"
	"github.com/wippyai/js-runtime/channel"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/transcoder"
)

// Config is the runtime configuration.
type Config struct {
	// Workers is the async worker count. Zero means GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers" validate:"gte=0,lte=1024" jsonschema:"minimum=0,maximum=1024"`
	// QueueDepth bounds queued async tasks. Zero means four per worker.
	QueueDepth int     `yaml:"queue_depth" json:"queue_depth" validate:"gte=0" jsonschema:"minimum=0"`
	Channel    Channel `yaml:"channel" json:"channel"`
	Numeric    string  `yaml:"numeric" json:"numeric" validate:"oneof=wrap strict" jsonschema:"enum=wrap,enum=strict,default=wrap"`
	Buffers    string  `yaml:"buffers" json:"buffers" validate:"oneof=copy zerocopy" jsonschema:"enum=copy,enum=zerocopy,default=copy"`
	Log        Log     `yaml:"log" json:"log"`
}

// Channel configures thread-safe invocation channels.
type Channel struct {
	Capacity     int    `yaml:"capacity" json:"capacity" validate:"gte=2,lte=65536" jsonschema:"minimum=2,maximum=65536,default=64"`
	Backpressure string `yaml:"backpressure" json:"backpressure" validate:"oneof=block fail" jsonschema:"enum=block,enum=fail,default=block"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Channel: Channel{
			Capacity:     channel.DefaultCapacity,
			Backpressure: channel.Block.String(),
		},
		Numeric: transcoder.NumericWrap.String(),
		Buffers: buffer.Copy.String(),
		Log: Log{
			Level: "info",
		},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("decode yaml").
			Cause(err).
			Build()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Detail("read %s", path).
			Cause(err).
			Build()
	}
	return Parse(data)
}

// Validate checks field ranges and enumerations. The first violation is
// reported with its yaml path.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if stderrors.As(err, &fields) && len(fields) > 0 {
		fe := fields[0]
		path := strings.Split(fe.Namespace(), ".")[1:]
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(path...).
			Value(fe.Value()).
			Detail("violates %s", constraint(fe)).
			Cause(err).
			Build()
	}
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).Cause(err).Build()
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
}

// NumericPolicy returns the integer conversion policy.
func (c *Config) NumericPolicy() transcoder.NumericPolicy {
	return transcoder.ParseNumericPolicy(c.Numeric)
}

// BufferMode returns the buffer transfer mode.
func (c *Config) BufferMode() buffer.Mode {
	return buffer.ParseMode(c.Buffers)
}

// ChannelOptions returns channel options carrying the configured capacity
// and backpressure policy.
func (c *Config) ChannelOptions() channel.Options {
	return channel.Options{
		Capacity:     c.Channel.Capacity,
		Backpressure: channel.ParseBackpressure(c.Channel.Backpressure),
	}
}

// Schema returns the JSON schema of the configuration file.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{
		ExpandedStruct: true,
		FieldNameTag:   "yaml",
	}
	s := r.Reflect(&Config{})
	s.Title = "js-runtime configuration"
	return json.MarshalIndent(s, "", "  ")
}
