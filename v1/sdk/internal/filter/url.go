// Copyright (C) 2019 Librato, Inc. All rights reserved.

// Package filter decides whether an incoming web request URL is traced.
package filter

import (
	"path/filepath"
	"regexp"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk/internal/config"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/internal/log"
	"github.com/coocood/freecache"
	"github.com/pkg/errors"
)

const cacheSize = 1024 * 1024

// Cache is a cache to store the trace decisions of URLs
type Cache struct{ *freecache.Cache }

// Trace decisions in cache
const (
	traceEnabled  = "t"
	traceDisabled = "f"
)

// SetURLTrace sets a url and its trace decision into the cache
func (c *Cache) SetURLTrace(url string, trace bool) {
	val := traceEnabled
	if !trace {
		val = traceDisabled
	}
	_ = c.Set([]byte(url), []byte(val), 0)
}

// GetURLTrace gets the trace decision of a URL
func (c *Cache) GetURLTrace(url string) (bool, error) {
	traceStr, err := c.Get([]byte(url))
	if err != nil {
		return false, err
	}
	return string(traceStr) == traceEnabled, nil
}

// Matcher defines a URL matching rule
type Matcher interface {
	Match(url string) bool
}

// RegexMatcher is a regular expression based URL matcher
type RegexMatcher struct {
	Regex *regexp.Regexp
}

// NewRegexMatcher creates a new RegexMatcher instance
func NewRegexMatcher(regex string) (*RegexMatcher, error) {
	re, err := regexp.Compile(regex)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse regexp")
	}
	return &RegexMatcher{Regex: re}, nil
}

// Match checks if the url matches the regex
func (f *RegexMatcher) Match(url string) bool {
	return f.Regex.MatchString(url)
}

// ExtensionMatcher matches URLs by their file extension
type ExtensionMatcher struct {
	Exts map[string]struct{}
}

// NewExtensionMatcher create a new instance of ExtensionMatcher
func NewExtensionMatcher(extensions []string) *ExtensionMatcher {
	exts := make(map[string]struct{})
	for _, ext := range extensions {
		exts[ext] = struct{}{}
	}
	return &ExtensionMatcher{Exts: exts}
}

// Match checks if the url has one of the extensions
func (f *ExtensionMatcher) Match(url string) bool {
	_, ok := f.Exts[filepath.Ext(url)]
	return ok
}

// URLFilter caches the trace decisions made by its matchers.
type URLFilter struct {
	cache    *Cache
	matchers []Matcher
}

// NewURLFilter builds a URLFilter from the disabled transaction filters.
// Enabled filters are skipped since tracing is the default. The decision
// cache is only allocated if there is a matcher to consult.
func NewURLFilter(filters []config.TransactionFilter) *URLFilter {
	f := &URLFilter{}
	for _, filter := range filters {
		if filter.Tracing == config.Enabled {
			continue
		}
		if filter.RegEx != "" {
			re, err := NewRegexMatcher(filter.RegEx)
			if err != nil {
				log.Warningf("Ignoring bad regex: %s, error=%s", filter.RegEx, err)
				continue
			}
			f.matchers = append(f.matchers, re)
		} else {
			f.matchers = append(f.matchers, NewExtensionMatcher(filter.Extensions))
		}
	}
	if len(f.matchers) > 0 {
		f.cache = &Cache{freecache.NewCache(cacheSize)}
	}
	return f
}

// ShouldTrace checks if the URL should be traced or not.
func (f *URLFilter) ShouldTrace(url string) bool {
	if f == nil || len(f.matchers) == 0 {
		return true
	}

	trace, err := f.cache.GetURLTrace(url)
	if err == nil {
		return trace
	}

	trace = f.shouldTrace(url)
	f.cache.SetURLTrace(url, trace)
	return trace
}

func (f *URLFilter) shouldTrace(url string) bool {
	for _, m := range f.matchers {
		if m.Match(url) {
			return false
		}
	}
	return true
}
