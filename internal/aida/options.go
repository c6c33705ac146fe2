package aida

import (
	"sync"

	"github.com/Masterminds/semver/v3"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

// Options tunes process-wide ORB behaviour.
type Options struct {
	// ProtocolVersion is announced by clients in META_HELLO.
	ProtocolVersion string
	// AcceptVersions is the semver constraint servers check client versions against.
	AcceptVersions string
	// DefaultCapacity is the minimum slot count of freshly allocated result messages.
	DefaultCapacity int
	// SweepThreshold is the number of collected proxies after which a client
	// hints META_SEEN_GARBAGE to its server.
	SweepThreshold int
	Debug          bool
}

// DefaultOptions returns the built-in settings.
func DefaultOptions() Options {
	return Options{
		ProtocolVersion: "1.0.0",
		AcceptVersions:  "^1.0",
		DefaultCapacity: 8,
		SweepThreshold:  64,
	}
}

var (
	optionsMutex sync.RWMutex
	options      = DefaultOptions()
	acceptCheck  = mustConstraint(options.AcceptVersions)
)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Configure validates and installs o. Zero fields keep their defaults.
func Configure(o Options) error {
	def := DefaultOptions()
	if o.ProtocolVersion == "" {
		o.ProtocolVersion = def.ProtocolVersion
	}
	if o.AcceptVersions == "" {
		o.AcceptVersions = def.AcceptVersions
	}
	if o.DefaultCapacity <= 0 {
		o.DefaultCapacity = def.DefaultCapacity
	}
	if o.SweepThreshold <= 0 {
		o.SweepThreshold = def.SweepThreshold
	}
	if _, err := semver.NewVersion(o.ProtocolVersion); err != nil {
		return orberrors.IncompatibleVersion(o.ProtocolVersion, "valid semantic version")
	}
	c, err := semver.NewConstraint(o.AcceptVersions)
	if err != nil {
		return orberrors.IncompatibleVersion(o.ProtocolVersion, o.AcceptVersions)
	}
	optionsMutex.Lock()
	options, acceptCheck = o, c
	optionsMutex.Unlock()
	SetDebug(o.Debug)
	return nil
}

// CurrentOptions returns the installed options.
func CurrentOptions() Options {
	optionsMutex.RLock()
	defer optionsMutex.RUnlock()
	return options
}

// checkProtocolVersion reports whether a client announcing version may connect.
func checkProtocolVersion(version string) error {
	optionsMutex.RLock()
	c, constraint := acceptCheck, options.AcceptVersions
	optionsMutex.RUnlock()
	v, err := semver.NewVersion(version)
	if err != nil {
		return orberrors.IncompatibleVersion(version, constraint)
	}
	if !c.Check(v) {
		return orberrors.IncompatibleVersion(v.String(), constraint)
	}
	return nil
}
