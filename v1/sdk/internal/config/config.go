// Copyright (C) 2017 Librato, Inc. All rights reserved.

// Package config is responsible for loading the SDK configuration from
// various sources: default values, the configuration file, environment
// variables and user-provided options, in that order of precedence.
//
// In order to add a new configuration item, you need to:
// - add a field to the Config struct and assign the corresponding env variable
//   name and the default value via struct tags.
// - add validation code to method `Config.validate()` (optional).
// - add a getter method.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk/internal/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// max config file size = 1MB
const maxConfigFileSize = 1024 * 1024

// The environment variables
const (
	envSDKDisabled        = "APPOPTICS_SDK_DISABLED"
	envSDKDebugLevel      = "APPOPTICS_SDK_DEBUG_LEVEL"
	envSDKServiceName     = "APPOPTICS_SDK_SERVICE_NAME"
	envSDKMinAgentVersion = "APPOPTICS_SDK_MIN_AGENT_VERSION"
	envSDKLegacyHeader    = "APPOPTICS_SDK_LEGACY_HEADER"
	envSDKConfigFile      = "APPOPTICS_SDK_CONFIG_FILE"
)

// Errors
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrFileTooLarge      = errors.New("file size exceeds limit")
)

// Config is the struct to define the SDK configuration.
type Config struct {
	sync.RWMutex `yaml:"-"`

	// Disabled forces the no-op SDK even when an agent is provided.
	Disabled bool `yaml:",omitempty" env:"APPOPTICS_SDK_DISABLED"`

	// DebugLevel is the level of the SDK internal logger.
	DebugLevel string `yaml:",omitempty" env:"APPOPTICS_SDK_DEBUG_LEVEL" default:"WARN"`

	// ServiceName is reported by the agents which need one.
	ServiceName string `yaml:",omitempty" env:"APPOPTICS_SDK_SERVICE_NAME" default:"appoptics-sdk"`

	// MinAgentVersion is the lowest agent version the SDK accepts as compatible.
	MinAgentVersion string `yaml:",omitempty" env:"APPOPTICS_SDK_MIN_AGENT_VERSION" default:"1.0.0"`

	// LegacyHeader includes the single-tag header in the injected tracing headers.
	LegacyHeader bool `yaml:",omitempty" env:"APPOPTICS_SDK_LEGACY_HEADER" default:"true"`

	// TransactionFilters lists the incoming web request URLs not to be traced.
	TransactionFilters []TransactionFilter `yaml:"TransactionSettings,omitempty"`
}

// TransactionFilter defines a filter rule for incoming web request URLs.
// Exactly one of RegEx and Extensions is expected to be set.
type TransactionFilter struct {
	Type       string   `yaml:"Type"`
	RegEx      string   `yaml:"RegEx,omitempty"`
	Extensions []string `yaml:"Extensions,omitempty"`
	Tracing    string   `yaml:"Tracing"`
}

// Tracing modes of a transaction filter
const (
	Enabled  = "enabled"
	Disabled = "disabled"
)

// Option is a function type that accepts a Config pointer and
// applies the configuration option it defines.
type Option func(c *Config)

// WithDisabled defines a Config option to disable the SDK.
func WithDisabled(disabled bool) Option {
	return func(c *Config) {
		c.Disabled = disabled
	}
}

// WithServiceName defines a Config option for the service name.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithMinAgentVersion defines a Config option for the minimum agent version.
func WithMinAgentVersion(v string) Option {
	return func(c *Config) {
		c.MinAgentVersion = v
	}
}

// WithLegacyHeader defines a Config option for the legacy tracing header.
func WithLegacyHeader(enabled bool) Option {
	return func(c *Config) {
		c.LegacyHeader = enabled
	}
}

// WithTransactionFilters defines a Config option for the URL filters.
func WithTransactionFilters(filters ...TransactionFilter) Option {
	return func(c *Config) {
		c.TransactionFilters = append(c.TransactionFilters, filters...)
	}
}

// NewConfig initializes a Config object and overrides the default values with
// the config file, the environment variables and the options provided as
// arguments.
//
// If there is an error (e.g., an unreadable config file), it will return a
// config with default values.
func NewConfig(opts ...Option) *Config {
	c := &Config{}
	if err := c.RefreshConfig(opts...); err != nil {
		log.Error(errors.Wrap(err, "config init failed, falling back to default values"))
		c.reset()
		for _, opt := range opts {
			opt(c)
		}
		c.validate()
	}
	return c
}

// RefreshConfig loads the customized settings and merge with default values
func (c *Config) RefreshConfig(opts ...Option) error {
	c.Lock()
	defer c.Unlock()

	c.reset()

	if err := c.loadConfigFile(); err != nil {
		return errors.Wrap(err, "RefreshConfig")
	}
	loadEnvsInternal(c)

	for _, opt := range opts {
		opt(c)
	}
	c.validate()
	log.Debugf("Accepted config items: %+v", c.items())
	return nil
}

func (c *Config) validate() {
	if _, ok := log.ToLogLevel(c.DebugLevel); !ok {
		log.Warning(InvalidEnv("DebugLevel", c.DebugLevel))
		c.DebugLevel = getFieldDefaultValue(c, "DebugLevel")
	}

	c.ServiceName = strings.TrimSpace(c.ServiceName)
	if c.ServiceName == "" {
		c.ServiceName = getFieldDefaultValue(c, "ServiceName")
	}

	if !IsValidVersion(c.MinAgentVersion) {
		log.Warning(InvalidEnv("MinAgentVersion", c.MinAgentVersion))
		c.MinAgentVersion = getFieldDefaultValue(c, "MinAgentVersion")
	}

	var filters []TransactionFilter
	for _, f := range c.TransactionFilters {
		if !IsValidTransactionFilter(f) {
			log.Warningf("Ignore invalid transaction filter: %+v", f)
			continue
		}
		f.Tracing = strings.ToLower(strings.TrimSpace(f.Tracing))
		filters = append(filters, f)
	}
	c.TransactionFilters = filters
}

func (c *Config) items() map[string]string {
	return map[string]string{
		envSDKDisabled:        strconv.FormatBool(c.Disabled),
		envSDKDebugLevel:      c.DebugLevel,
		envSDKServiceName:     c.ServiceName,
		envSDKMinAgentVersion: c.MinAgentVersion,
		envSDKLegacyHeader:    strconv.FormatBool(c.LegacyHeader),
	}
}

func getFieldDefaultValue(i interface{}, name string) string {
	iv := reflect.Indirect(reflect.ValueOf(i))
	if iv.Kind() != reflect.Struct {
		panic("calling getFieldDefaultValue with non-struct type")
	}

	field, ok := iv.Type().FieldByName(name)
	if !ok {
		panic(fmt.Sprintf("invalid field: %s", name))
	}
	return field.Tag.Get("default")
}

func (c *Config) reset() *Config {
	c.TransactionFilters = nil
	return initStruct(c).(*Config)
}

// initStruct initialize the struct with the default values of the struct tags
// The input must be an addressable struct object (or its pointer)
func initStruct(c interface{}) interface{} {
	val := reflect.Indirect(reflect.ValueOf(c))

	for i := 0; i < val.NumField(); i++ {
		fieldVal := reflect.Indirect(val.Field(i))
		field := val.Type().Field(i)

		if field.Anonymous || !fieldVal.CanSet() || !isScalar(field.Type.Kind()) {
			continue
		}
		fieldVal.Set(stringToValue(field.Tag.Get("default"), field.Type.Kind()))
	}
	return c
}

func isScalar(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int64, reflect.String, reflect.Bool:
		return true
	}
	return false
}

// stringToValue converts a string to a value specified by the kind.
func stringToValue(s string, kind reflect.Kind) reflect.Value {
	s = strings.TrimSpace(s)

	var val interface{}
	var err error
	switch kind {
	case reflect.Int:
		if s == "" {
			s = "0"
		}
		val, err = strconv.Atoi(s)
		if err != nil {
			log.Warningf("Ignore invalid int value: %s", s)
			val = 0
		}
	case reflect.Int64:
		if s == "" {
			s = "0"
		}
		val, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			log.Warningf("Ignore invalid int64 value: %s", s)
			val = int64(0)
		}
	case reflect.String:
		val = s
	case reflect.Bool:
		if s == "" {
			s = "false"
		}
		val, err = toBool(s)
		if err != nil {
			log.Warningf("Ignore invalid bool value: %s", errors.Wrap(err, s))
		}
	default:
		panic(fmt.Sprintf("Unsupported kind: %v, val: %s", kind, s))
	}
	return reflect.ValueOf(val)
}

// loadEnvsInternal assigns the non-empty env variables to the fields tagged
// with `env`. c must be a pointer to a struct object.
func loadEnvsInternal(c interface{}) {
	cv := reflect.Indirect(reflect.ValueOf(c))
	ct := cv.Type()

	for i := 0; i < ct.NumField(); i++ {
		fieldV := cv.Field(i)
		field := ct.Field(i)
		if !fieldV.CanSet() || field.Anonymous || !isScalar(fieldV.Kind()) {
			continue
		}

		tagV := field.Tag.Get("env")
		if tagV == "" {
			continue
		}
		envVal := os.Getenv(tagV)
		if envVal == "" {
			continue
		}
		if fieldV.Kind() == reflect.Bool {
			if _, err := toBool(envVal); err != nil {
				log.Warning(InvalidEnv(tagV, envVal))
				continue
			}
		}
		fieldV.Set(stringToValue(envVal, fieldV.Kind()))
	}
}

// getConfigPath returns the absolute path of the config file.
func (c *Config) getConfigPath() string {
	if path, ok := os.LookupEnv(envSDKConfigFile); ok {
		abs, err := filepath.Abs(path)
		if err == nil {
			return abs
		}
		log.Warningf("Ignore config file %s: %s", path, err)
	}

	candidates := []string{
		"./appoptics-sdk.yaml",
		"./appoptics-sdk.yml",
	}
	for _, file := range candidates {
		abs, err := filepath.Abs(file)
		if err != nil {
			continue
		}
		if _, e := os.Stat(abs); e != nil {
			continue
		}
		return abs
	}
	return ""
}

func (c *Config) loadYaml(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "loadYaml")
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(err, "loadYaml")
	}
	return nil
}

func (c *Config) checkFileSize(path string) error {
	file, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "checkFileSize")
	}
	if size := file.Size(); size > maxConfigFileSize {
		return errors.Wrap(ErrFileTooLarge, fmt.Sprintf("File size: %d", size))
	}
	return nil
}

// loadConfigFile loads from the config file
func (c *Config) loadConfigFile() error {
	path := c.getConfigPath()
	if path == "" {
		log.Debug("No config file found.")
		return nil
	}

	if err := c.checkFileSize(path); err != nil {
		return errors.Wrap(err, "loadConfigFile")
	}

	switch filepath.Ext(path) {
	case ".yml", ".yaml":
		log.Infof("Loading config file: %s", path)
		return c.loadYaml(path)
	default:
		return errors.Wrap(ErrUnsupportedFormat, path)
	}
}

// GetDisabled returns if the SDK is disabled
func (c *Config) GetDisabled() bool {
	c.RLock()
	defer c.RUnlock()
	return c.Disabled
}

// GetDebugLevel returns the level of the internal logger
func (c *Config) GetDebugLevel() string {
	c.RLock()
	defer c.RUnlock()
	return c.DebugLevel
}

// GetServiceName returns the service name
func (c *Config) GetServiceName() string {
	c.RLock()
	defer c.RUnlock()
	return c.ServiceName
}

// GetMinAgentVersion returns the minimum compatible agent version
func (c *Config) GetMinAgentVersion() string {
	c.RLock()
	defer c.RUnlock()
	return c.MinAgentVersion
}

// GetLegacyHeader returns whether the legacy tracing header is injected
func (c *Config) GetLegacyHeader() bool {
	c.RLock()
	defer c.RUnlock()
	return c.LegacyHeader
}

// GetTransactionFilters returns a copy of the URL filter rules
func (c *Config) GetTransactionFilters() []TransactionFilter {
	c.RLock()
	defer c.RUnlock()
	return append([]TransactionFilter(nil), c.TransactionFilters...)
}
