package mongo

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

const (
	// DriverName is the driver name announced in the handshake document.
	DriverName = "mongo-go"

	// DriverVersion is the version of this package.
	DriverVersion = "0.1.0"

	handshakeMaxSize = 512

	osTypeMax         = 32
	osNameMax         = 32
	osVersionMax      = 32
	osArchitectureMax = 32
	driverNameMax     = 64
	driverVersionMax  = 32

	// AppNameMax is the maximum length in bytes of an application name.
	AppNameMax = 128
)

// Metadata is the client identity sent to servers in the handshake document.
// Strings are truncated to the limits accepted by servers.
type Metadata struct {
	OSType         string
	OSName         string
	OSVersion      string
	OSArchitecture string

	DriverName    string
	DriverVersion string
	Platform      string
	CompilerInfo  string
	Flags         string

	Env Env
}

// Handshake builds the client metadata once and freezes it. Before it is
// frozen, wrapping libraries may append their own driver information.
//
// A Handshake is safe for concurrent use by multiple goroutines. The zero
// value is not usable, use NewHandshake.
type Handshake struct {
	mutex   sync.Mutex
	frozen  atomic.Bool
	md      Metadata
	appends []driverInfo
	builds  int
	getenv  func(string) string
	uname   func() (name, version string)
}

type driverInfo struct {
	name, version, platform string
}

// NewHandshake returns a Handshake which will detect the metadata of the
// current process when first built.
func NewHandshake() *Handshake {
	return &Handshake{uname: uname}
}

// AppendDriver records the identity of a library wrapping this package. The
// values are appended to the driver name, driver version, and platform when
// the metadata is built.
//
// The method returns AlreadyFrozen if the metadata was already built.
func (h *Handshake) AppendDriver(name, version, platform string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.frozen.Load() {
		return makeError(AlreadyFrozen, "cannot append driver information to frozen handshake metadata", nil)
	}

	h.appends = append(h.appends, driverInfo{name: name, version: version, platform: platform})
	return nil
}

// BuildOnce returns the metadata, building it on the first call. Subsequent
// calls from any goroutine return the same snapshot.
func (h *Handshake) BuildOnce() Metadata {
	if h.frozen.Load() {
		return h.md
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.frozen.Load() {
		h.md = h.build()
		h.builds++
		// Readers which observe the flag also observe the metadata written
		// above.
		h.frozen.Store(true)
	}

	return h.md
}

// Freeze builds the metadata if it was not built yet. No driver information
// can be appended after it returns.
func (h *Handshake) Freeze() { h.BuildOnce() }

// Reset tears the handshake down: the snapshot and the appended driver
// information are dropped, and the next call to BuildOnce detects the metadata
// again. It must not be called concurrently with the other methods.
func (h *Handshake) Reset() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.frozen.Store(false)
	h.md = Metadata{}
	h.appends = nil
}

// Frozen reports whether the metadata was built.
func (h *Handshake) Frozen() bool { return h.frozen.Load() }

func (h *Handshake) build() Metadata {
	osName, osVersion := runtime.GOOS, ""
	if h.uname != nil {
		if name, version := h.uname(); name != "" {
			osName, osVersion = name, version
		}
	}

	compilerInfo := fmt.Sprintf("%s=%s", runtime.Compiler, runtime.Version())
	flags := fmt.Sprintf("0x%x", configFlags())

	md := Metadata{
		OSType:         runtime.GOOS,
		OSName:         osName,
		OSVersion:      osVersion,
		OSArchitecture: runtime.GOARCH,
		DriverName:     DriverName,
		DriverVersion:  DriverVersion,
		Platform:       "cfg=" + flags + " " + compilerInfo,
		CompilerInfo:   compilerInfo,
		Flags:          flags,
		Env:            detectEnv(h.getenv),
	}

	for _, d := range h.appends {
		md.DriverName = appendDriverField(md.DriverName, d.name)
		md.DriverVersion = appendDriverField(md.DriverVersion, d.version)
		md.Platform = appendDriverField(md.Platform, d.platform)
	}

	md.truncateFields()
	return md
}

// truncateFields enforces the length limits of the fixed size fields, the
// platform has no limit of its own and is truncated when encoding.
func (md *Metadata) truncateFields() {
	md.OSType = truncate(md.OSType, osTypeMax)
	md.OSName = truncate(md.OSName, osNameMax)
	md.OSVersion = truncate(md.OSVersion, osVersionMax)
	md.OSArchitecture = truncate(md.OSArchitecture, osArchitectureMax)
	md.DriverName = truncate(md.DriverName, driverNameMax)
	md.DriverVersion = truncate(md.DriverVersion, driverVersionMax)
}

func appendDriverField(s, suffix string) string {
	if suffix == "" {
		return s
	}
	return s + " / " + suffix
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ValidAppName reports whether name can be sent as the application name.
func ValidAppName(name string) bool {
	return len(name) <= AppNameMax
}

// Document builds the client sub-document of the hello command. The document
// never exceeds 512 bytes: the platform is truncated first, then the env
// fields, the env document, the os fields other than type, and the platform
// are removed until it fits.
func (h *Handshake) Document(appName string) (bsoncore.Document, error) {
	if !ValidAppName(appName) {
		return nil, fmt.Errorf("application name exceeds %d bytes", AppNameMax)
	}

	md := h.BuildOnce()
	levels := [...]docLevel{
		{envFields: true, env: true, osFields: true, platform: true},
		{env: true, osFields: true, platform: true},
		{osFields: true, platform: true},
		{platform: true},
		{},
	}

	for _, level := range levels {
		if doc, ok := md.document(appName, level); ok {
			return doc, nil
		}
	}

	return nil, fmt.Errorf("handshake document exceeds %d bytes", handshakeMaxSize)
}

type docLevel struct {
	envFields bool
	env       bool
	osFields  bool
	platform  bool
}

// platformOverhead is the size of a platform element with an empty value.
const platformOverhead = 1 + len("platform") + 1 + 4 + 1

func (md *Metadata) document(appName string, level docLevel) (bsoncore.Document, bool) {
	idx, doc := bsoncore.AppendDocumentStart(make([]byte, 0, handshakeMaxSize))

	if appName != "" {
		var app int32
		app, doc = bsoncore.AppendDocumentElementStart(doc, "application")
		doc = appendString(doc, "name", appName)
		doc, _ = bsoncore.AppendDocumentEnd(doc, app)
	}

	var sub int32
	sub, doc = bsoncore.AppendDocumentElementStart(doc, "driver")
	doc = appendString(doc, "name", md.DriverName)
	doc = appendString(doc, "version", md.DriverVersion)
	doc, _ = bsoncore.AppendDocumentEnd(doc, sub)

	sub, doc = bsoncore.AppendDocumentElementStart(doc, "os")
	doc = appendString(doc, "type", md.OSType)
	if level.osFields {
		doc = appendOptionalString(doc, "name", md.OSName)
		doc = appendOptionalString(doc, "architecture", md.OSArchitecture)
		doc = appendOptionalString(doc, "version", md.OSVersion)
	}
	doc, _ = bsoncore.AppendDocumentEnd(doc, sub)

	if level.env && md.Env != nil {
		sub, doc = bsoncore.AppendDocumentElementStart(doc, "env")
		doc = md.Env.appendFields(doc, level.envFields)
		doc, _ = bsoncore.AppendDocumentEnd(doc, sub)
	}

	if level.platform {
		// Leave room for the platform element and the document terminator.
		remain := handshakeMaxSize - len(doc) - platformOverhead - 1
		if remain < 0 {
			return nil, false
		}
		doc = appendString(doc, "platform", truncate(md.Platform, remain))
	}

	doc, _ = bsoncore.AppendDocumentEnd(doc, idx)
	return doc, len(doc) <= handshakeMaxSize
}

func appendString(dst []byte, key, value string) []byte {
	return bsoncore.AppendStringElement(dst, key, value)
}

func appendOptionalString(dst []byte, key, value string) []byte {
	if value == "" {
		return dst
	}
	return bsoncore.AppendStringElement(dst, key, value)
}

func appendOptionalInt32(dst []byte, key string, value int32) []byte {
	if value == 0 {
		return dst
	}
	return bsoncore.AppendInt32Element(dst, key, value)
}

// String returns a human readable summary of the metadata.
func (md Metadata) String() string {
	s := []string{
		md.DriverName + " " + md.DriverVersion,
		md.OSType + "/" + md.OSArchitecture,
	}
	if md.OSName != "" {
		s = append(s, md.OSName+" "+md.OSVersion)
	}
	if md.Env != nil {
		s = append(s, md.Env.Name())
	}
	return strings.Join(s, ", ")
}

// Bits of the flags handshake field, one per feature compiled in the driver.
const (
	flagCompressionSnappy = 1 << iota
	flagCompressionZlib
	flagCompressionZstd
	flagTLS
	flagAuthOIDC
)

func configFlags() uint64 {
	return flagCompressionSnappy |
		flagCompressionZlib |
		flagCompressionZstd |
		flagTLS |
		flagAuthOIDC
}
