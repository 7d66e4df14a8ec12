package catalog

import (
	"strings"
	"time"
	"unicode/utf16"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/jetdb/jetdb/jet/bytecodec"
	"github.com/jetdb/jetdb/jet/format"
	"github.com/jetdb/jetdb/jet/index"
	"github.com/jetdb/jetdb/jet/jeterr"
	"github.com/jetdb/jetdb/jet/jetlog"
	"github.com/jetdb/jetdb/jet/page"
	"github.com/jetdb/jetdb/jet/table"
	"github.com/jetdb/jetdb/jet/usagemap"
)

// ColumnOrder selects the order Table.OrderedColumns returns columns
// in: data (declaration) order, or display order by each column's
// DisplayIndex.
type ColumnOrder int

const (
	ColumnOrderData ColumnOrder = iota
	ColumnOrderDisplay
)

// DateTimeType selects how Table.GetRow renders SHORT_DATE_TIME
// values: DateTimeTypeDate yields a time.Time in Config.Location, while
// DateTimeTypeLocalDateTime yields the stored wall-clock fields
// anchored in UTC, a zone-less civil timestamp.
type DateTimeType int

const (
	DateTimeTypeDate DateTimeType = iota
	DateTimeTypeLocalDateTime
)

// Config carries every recognized database-wide setting as a plain Go
// struct - no package-level globals. Start from DefaultConfig and
// override only the fields a caller needs; the zero Config also works
// but leaves the boolean defaults (EnforceForeignKeys etc.) at false.
type Config struct {
	ResourcePath string
	ChunkedIO    bool

	Location         *time.Location
	CharsetOverrides map[format.Version]encoding.Encoding

	ColumnOrder                ColumnOrder
	EnforceForeignKeys         bool
	AllowAutoNumberInsert      bool
	EnableExpressionEvaluation bool
	DateTimeType               DateTimeType

	// ErrorHandler runs on every per-page/per-row decode failure; the
	// default (set by DefaultConfig, and lazily by Open/Create if left
	// nil) rethrows unchanged.
	ErrorHandler func(error) error

	Logger jetlog.Logger
}

// DefaultConfig returns the Config new code should start from:
// foreign-key enforcement and expression evaluation on, an identity
// ErrorHandler, and a discard Logger.
func DefaultConfig() Config {
	return Config{
		EnforceForeignKeys:         true,
		EnableExpressionEvaluation: true,
		ErrorHandler:               func(err error) error { return err },
		Logger:                     jetlog.Discard(),
	}
}

func (c Config) withDefaults() Config {
	if c.ErrorHandler == nil {
		c.ErrorHandler = func(err error) error { return err }
	}
	if c.Logger == nil {
		c.Logger = jetlog.Discard()
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

// LinkResolver opens the Database backing a linked table by the linked
// database's name.
type LinkResolver func(databaseName string) (*Database, error)

// tablesGroupID is the fixed object id of the "Tables" bootstrap row:
// the ParentId every ordinary table row carries, found in an existing
// database by ParentId=tablesParentSentinel, Name="Tables".
const tablesGroupID int32 = 1

// tablesParentSentinel is the ParentId value the "Tables" group row
// itself carries.
const tablesParentSentinel int32 = 0xF000000

// msysObjectsDefPage is the fixed page number of the MSysObjects
// TABLE_DEF page in every database this engine creates (page 0 is the
// header, page 1 the global usage map).
const msysObjectsDefPage page.Number = 2

// Database is an open database handle: the bootstrapped PageChannel
// plus the system catalog and whatever tables/indexes have been
// resolved so far.
type Database struct {
	cfg     Config
	channel *page.Channel
	global  *usagemap.GlobalMap
	fk      *index.FKEnforcer

	sysObjects *table.Table

	tablesParentID int32
	nextObjectID   int32

	byPage     map[page.Number]*Table
	nameToPage map[string]page.Number

	linkResolver LinkResolver
}

func globalMapStorage(p *page.Page) usagemap.Storage {
	return &pageStorage{p: p, off: 1, n: len(p.Data()) - 1}
}

func buildPage0(v format.Version) []byte {
	f := format.For(v)
	buf := make([]byte, f.PageSize)
	marker := format.Marker(v)
	buf[format.Page0VersionOffset] = byte(marker)
	buf[format.Page0VersionOffset+1] = byte(marker >> 8)
	mask := format.HeaderMask(v)
	if f.PasswordOffset+len(mask) <= len(buf) {
		bytecodec.XOR(buf, f.PasswordOffset, mask)
	}
	return buf
}

// Create initializes a brand-new database of the given format version
// over dst/src (an empty backing store) and returns it opened. The
// header, global usage map, and system catalog are synthesized directly
// rather than copied from a binary template asset.
func Create(src page.Source, dst page.Sink, version format.Version, cfg Config) (*Database, error) {
	cfg = cfg.withDefaults()

	if err := dst.WritePage(0, buildPage0(version)); err != nil {
		return nil, jeterr.Wrap(jeterr.IoFailure, err, "write page 0")
	}

	channel, err := page.Open(src, dst)
	if err != nil {
		return nil, err
	}
	channel.SetLogger(cfg.Logger)
	cfg.Logger.WithField("version", version.String()).Info("creating database")

	db := &Database{
		cfg:            cfg,
		channel:        channel,
		tablesParentID: tablesGroupID,
		nextObjectID:   -1,
		byPage:         make(map[page.Number]*Table),
		nameToPage:     make(map[string]page.Number),
	}
	db.fk = index.NewFKEnforcer(db.resolveIndexData)

	channel.BeginWrite()
	p1, err := channel.AllocateNewPage(page.TypePageUsageMap)
	if err != nil {
		channel.EndWrite()
		return nil, err
	}
	db.global = usagemap.NewGlobalMap(globalMapStorage(p1), channel, channel.Format())
	channel.SetGlobalMap(db.global)

	if err := db.bootstrapSysObjects(); err != nil {
		channel.EndWrite()
		return nil, err
	}

	if err := channel.EndWrite(); err != nil {
		return nil, err
	}
	return db, nil
}

// Open binds to an existing database's pages, detecting its format
// version from page 0 and loading MSysObjects.
func Open(src page.Source, dst page.Sink, cfg Config) (*Database, error) {
	cfg = cfg.withDefaults()

	channel, err := page.Open(src, dst)
	if err != nil {
		return nil, err
	}
	channel.SetLogger(cfg.Logger)
	cfg.Logger.WithField("version", channel.Format().Version.String()).Info("opening database")

	db := &Database{
		cfg:        cfg,
		channel:    channel,
		byPage:     make(map[page.Number]*Table),
		nameToPage: make(map[string]page.Number),
	}
	db.fk = index.NewFKEnforcer(db.resolveIndexData)

	p1, err := channel.ReadPage(1)
	if err != nil {
		return nil, err
	}
	global, err := usagemap.LoadGlobalMap(globalMapStorage(p1), channel, channel.Format())
	if err != nil {
		return nil, err
	}
	db.global = global
	channel.SetGlobalMap(global)

	if err := db.loadSysObjects(); err != nil {
		return nil, err
	}
	return db, nil
}

// Close flushes any pending writes. Database does not otherwise own the
// underlying file descriptor - that belongs to whatever Source/Sink the
// caller constructed Open/Create with.
func (db *Database) Close() error {
	return db.channel.Flush()
}

// Logger returns the configured logger, never nil.
func (db *Database) Logger() jetlog.Logger { return db.cfg.Logger }

// Config returns the database's effective configuration.
func (db *Database) Config() Config { return db.cfg }

// allocateObjectID returns the next synthetic negative object id.
func (db *Database) allocateObjectID() int32 {
	id := db.nextObjectID
	db.nextObjectID--
	return id
}

// validateIdentifier enforces the object naming rules: 1-64 UTF-16
// code units, no leading space, no control characters, and none of
// '.', '!', '`', '[', ']'.
func validateIdentifier(name string) error {
	units := utf16.Encode([]rune(name))
	if len(units) == 0 || len(units) > 64 {
		return jeterr.New(jeterr.InvalidIdentifier, "identifier %q must be 1-64 UTF-16 code units, got %d", name, len(units))
	}
	if strings.HasPrefix(name, " ") {
		return jeterr.New(jeterr.InvalidIdentifier, "identifier %q may not begin with a space", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7F {
			return jeterr.New(jeterr.InvalidIdentifier, "identifier %q contains a control character", name)
		}
		switch r {
		case '.', '!', '`', '[', ']':
			return jeterr.New(jeterr.InvalidIdentifier, "identifier %q contains the disallowed character %q", name, r)
		}
	}
	return nil
}

func equalFold(a, b string) bool { return strings.EqualFold(a, b) }

// defaultCharsets maps the 8-bit code pages pre-Jet4 formats store
// uncompressed text in onto their encodings. Jet4+ text is UTF-16LE and
// needs no entry here.
var defaultCharsets = map[uint16]encoding.Encoding{
	1250: charmap.Windows1250,
	1251: charmap.Windows1251,
	1252: charmap.Windows1252,
	1254: charmap.Windows1254,
}

// tableOptions derives the per-table codec options every table handle
// opened through this Database shares: the logger, the date rendering
// (Location, or UTC when DateTimeTypeLocalDateTime asks for zone-less
// civil timestamps), and the text charset, either overridden per format
// version in the Config or defaulted from the format's code page for
// pre-Jet4 files.
func (db *Database) tableOptions() []table.Option {
	loc := db.cfg.Location
	if db.cfg.DateTimeType == DateTimeTypeLocalDateTime {
		loc = time.UTC
	}
	opts := []table.Option{
		table.WithLocation(loc),
		table.WithLogger(db.cfg.Logger),
	}
	f := db.channel.Format()
	if enc, ok := db.cfg.CharsetOverrides[f.Version]; ok {
		opts = append(opts, table.WithCharset(enc))
	} else if f.Version == format.Jet3 {
		if enc, ok := defaultCharsets[f.DefaultCodePage]; ok {
			opts = append(opts, table.WithCharset(enc))
		}
	}
	return opts
}
