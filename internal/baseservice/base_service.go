// Package baseservice contains structs and initialization functions for
// "service-like" objects that provide commonly needed facilities so that they
// don't have to be redefined on every struct. The word "service" is used quite
// loosely here in that it may be applied to many long-lived objects that aren't
// strictly services (e.g. process callbacks or session stores).
package baseservice

import (
	"log/slog"
	"reflect"
	"strings"
	"time"
)

// Archetype contains the set of base service properties that are immutable, or
// otherwise safe for services to copy from another service. The struct is also
// embedded in BaseService, so these properties are available on services
// directly.
type Archetype struct {
	// Logger is a structured logger.
	Logger *slog.Logger

	// Time returns a time generator to get the current time in UTC. Normally
	// it's implemented as UnStubbableTimeGenerator, but is a stub in tests so
	// that the current time can be controlled.
	Time TimeGeneratorWithStub
}

// NewArchetype returns a new archetype. This function is most suitable for
// non-test usage wherein nothing should be stubbed. A nil logger falls back to
// slog.Default.
func NewArchetype(logger *slog.Logger) *Archetype {
	if logger == nil {
		logger = slog.Default()
	}

	return &Archetype{
		Logger: logger,
		Time:   &UnStubbableTimeGenerator{},
	}
}

// BaseService is a struct that's meant to be embedded on "service-like" objects
// and which provides a number of convenient properties that are widely needed
// so that they don't have to be defined on every individual service.
type BaseService struct {
	Archetype

	// Name is a name of the service. It should generally be used to prefix all
	// log lines the service emits.
	Name string
}

func (s *BaseService) GetBaseService() *BaseService { return s }

// WithBaseService is an interface to a struct that embeds BaseService. An
// implementation is provided automatically by BaseService.
type WithBaseService interface {
	GetBaseService() *BaseService
}

// Init initializes a base service from an archetype. It returns the same
// service that was passed into it for convenience.
func Init[TService WithBaseService](archetype *Archetype, service TService) TService {
	var (
		baseService = service.GetBaseService()
		serviceType = reflect.TypeOf(service).Elem()
	)

	baseService.Logger = archetype.Logger
	baseService.Name = lastPkgPathSegmentIfNotRoot(serviceType.PkgPath()) + serviceType.Name()
	baseService.Time = archetype.Time

	return service
}

// TimeGenerator generates a current time in UTC.
type TimeGenerator interface {
	// NowUTC returns the current time. This may be a stubbed time if the time
	// has been actively stubbed in a test.
	NowUTC() time.Time
}

type TimeGeneratorWithStub interface {
	TimeGenerator

	// StubNowUTC stubs the current time. It will panic if invoked outside of
	// tests. Returns the same time passed as parameter for convenience.
	StubNowUTC(nowUTC time.Time) time.Time
}

// UnStubbableTimeGenerator is a TimeGenerator implementation that can't be
// stubbed. It's always the generator used outside of tests.
type UnStubbableTimeGenerator struct{}

func (g *UnStubbableTimeGenerator) NowUTC() time.Time { return time.Now().UTC() }

func (g *UnStubbableTimeGenerator) StubNowUTC(nowUTC time.Time) time.Time {
	panic("time not stubbable outside tests")
}

// Takes a package path and extracts the last part of it to use in a service
// name for logging purposes. If the package is the top-level `riverscript`
// returns an empty string so that top-level structs aren't prefixed but
// sub-packages structs are.
//
//   - github.com/riverqueue/riverscript                -> ""
//   - github.com/riverqueue/riverscript/scriptendpoint -> "scriptendpoint."
func lastPkgPathSegmentIfNotRoot(pkgPath string) string {
	lastSlashIndex := strings.LastIndex(pkgPath, "/")
	if lastSlashIndex == -1 {
		return ""
	}

	lastPart := pkgPath[lastSlashIndex+1:]
	if lastPart == "" || lastPart == "riverscript" {
		return ""
	}

	return lastPart + "."
}
