package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"seanav/internal/tracking/models"
	id "seanav/pkg/domain"
	"seanav/pkg/platform/sentinel"
	txcontext "seanav/pkg/platform/tx"
)

//go:embed migrations/001_init.sql
var schemaSQL string

// uniqueViolation is the SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

// PostgresStore implements Store on database/sql. Every method joins the
// transaction carried by the context, if any.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a PostgresStore.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, sentinel.ErrAlreadyUsed)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func nullUUID[T ~[16]byte](v *T) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func uuidStrings[T ~[16]byte](ids []T) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		out = append(out, uuid.UUID(v).String())
	}
	return out
}

// -----------------------------------------------------------------------------
// Persons and reference data
// -----------------------------------------------------------------------------

const personColumns = `id, name, document_id, document_type, nationality, sex, resident, rut, category, card, company_id, active, created_at`

func scanPerson(row interface{ Scan(...any) error }) (*models.Person, error) {
	var (
		p         models.Person
		pid       uuid.UUID
		companyID uuid.NullUUID
		category  string
	)
	if err := row.Scan(&pid, &p.Name, &p.DocumentID, &p.DocumentType, &p.Nationality, &p.Sex,
		&p.Resident, &p.Rut, &category, &p.Card, &companyID, &p.Active, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ID = id.PersonID(pid)
	p.Category = models.Category(category)
	if companyID.Valid {
		c := id.CompanyID(companyID.UUID)
		p.CompanyID = &c
	}
	return &p, nil
}

func (s *PostgresStore) FindPerson(ctx context.Context, personID id.PersonID) (*models.Person, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+personColumns+` FROM persons WHERE id = $1`, uuid.UUID(personID))
	p, err := scanPerson(row)
	return p, translate(err, "find person")
}

func (s *PostgresStore) FindPersonByRut(ctx context.Context, rut string) (*models.Person, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+personColumns+` FROM persons WHERE rut = $1 AND rut <> ''`, rut)
	p, err := scanPerson(row)
	return p, translate(err, "find person by rut")
}

func (s *PostgresStore) CreatePerson(ctx context.Context, p *models.Person) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO persons (`+personColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		uuid.UUID(p.ID), p.Name, p.DocumentID, p.DocumentType, p.Nationality, p.Sex,
		p.Resident, p.Rut, string(p.Category), p.Card, nullUUID(p.CompanyID), p.Active, p.CreatedAt,
	)
	return translate(err, "insert person")
}

func (s *PostgresStore) FindCompany(ctx context.Context, companyID id.CompanyID) (*models.Company, error) {
	var (
		c   models.Company
		cid uuid.UUID
	)
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT id, name, description FROM companies WHERE id = $1`, uuid.UUID(companyID)).
		Scan(&cid, &c.Name, &c.Description)
	if err != nil {
		return nil, translate(err, "find company")
	}
	c.ID = id.CompanyID(cid)
	return &c, nil
}

func (s *PostgresStore) CreateCompany(ctx context.Context, c *models.Company) error {
	_, err := s.execer(ctx).ExecContext(ctx, `INSERT INTO companies (id, name, description) VALUES ($1, $2, $3)`,
		uuid.UUID(c.ID), c.Name, c.Description)
	return translate(err, "insert company")
}

func scanSector(row interface{ Scan(...any) error }) (*models.Sector, error) {
	var (
		sec      models.Sector
		sid, cid uuid.UUID
	)
	if err := row.Scan(&sid, &cid, &sec.Name, &sec.Description); err != nil {
		return nil, err
	}
	sec.ID = id.SectorID(sid)
	sec.CompanyID = id.CompanyID(cid)
	return &sec, nil
}

func (s *PostgresStore) FindSector(ctx context.Context, sectorID id.SectorID) (*models.Sector, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT id, company_id, name, description FROM sectors WHERE id = $1`, uuid.UUID(sectorID))
	sec, err := scanSector(row)
	return sec, translate(err, "find sector")
}

func (s *PostgresStore) ListSectorsByCompany(ctx context.Context, companyID id.CompanyID) ([]*models.Sector, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT id, company_id, name, description FROM sectors WHERE company_id = $1 ORDER BY seq`, uuid.UUID(companyID))
	if err != nil {
		return nil, translate(err, "list sectors")
	}
	defer rows.Close()

	var out []*models.Sector
	for rows.Next() {
		sec, err := scanSector(rows)
		if err != nil {
			return nil, translate(err, "scan sector")
		}
		out = append(out, sec)
	}
	return out, translate(rows.Err(), "list sectors")
}

func (s *PostgresStore) CreateSector(ctx context.Context, sec *models.Sector) error {
	_, err := s.execer(ctx).ExecContext(ctx, `INSERT INTO sectors (id, company_id, name, description) VALUES ($1, $2, $3, $4)`,
		uuid.UUID(sec.ID), uuid.UUID(sec.CompanyID), sec.Name, sec.Description)
	return translate(err, "insert sector")
}

func scanSeaport(row interface{ Scan(...any) error }) (*models.Seaport, error) {
	var (
		p   models.Seaport
		pid uuid.UUID
	)
	if err := row.Scan(&pid, &p.LocationID, &p.LocationName); err != nil {
		return nil, err
	}
	p.ID = id.SeaportID(pid)
	return &p, nil
}

func (s *PostgresStore) FindSeaport(ctx context.Context, seaportID id.SeaportID) (*models.Seaport, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT id, location_id, location_name FROM seaports WHERE id = $1`, uuid.UUID(seaportID))
	p, err := scanSeaport(row)
	return p, translate(err, "find seaport")
}

func (s *PostgresStore) ListSeaports(ctx context.Context) ([]*models.Seaport, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT id, location_id, location_name FROM seaports ORDER BY seq`)
	if err != nil {
		return nil, translate(err, "list seaports")
	}
	defer rows.Close()

	var out []*models.Seaport
	for rows.Next() {
		p, err := scanSeaport(rows)
		if err != nil {
			return nil, translate(err, "scan seaport")
		}
		out = append(out, p)
	}
	return out, translate(rows.Err(), "list seaports")
}

func (s *PostgresStore) CreateSeaport(ctx context.Context, p *models.Seaport) error {
	_, err := s.execer(ctx).ExecContext(ctx, `INSERT INTO seaports (id, location_id, location_name) VALUES ($1, $2, $3)`,
		uuid.UUID(p.ID), p.LocationID, p.LocationName)
	return translate(err, "insert seaport")
}

const itineraryColumns = `id, ref_id, name, depart_at, arrival_at, active, seaport_ids::text`

func scanItinerary(row interface{ Scan(...any) error }) (*models.Itinerary, error) {
	var (
		it       models.Itinerary
		iid      uuid.UUID
		depart   sql.NullTime
		arrival  sql.NullTime
		seaports pq.StringArray
	)
	if err := row.Scan(&iid, &it.RefID, &it.Name, &depart, &arrival, &it.Active, &seaports); err != nil {
		return nil, err
	}
	it.ID = id.ItineraryID(iid)
	it.DepartAt = depart.Time
	it.ArrivalAt = arrival.Time
	for _, raw := range seaports {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("itinerary seaport %q: %w", raw, err)
		}
		it.SeaportIDs = append(it.SeaportIDs, id.SeaportID(pid))
	}
	return &it, nil
}

func (s *PostgresStore) FindItinerary(ctx context.Context, itineraryID id.ItineraryID) (*models.Itinerary, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+itineraryColumns+` FROM itineraries WHERE id = $1`, uuid.UUID(itineraryID))
	it, err := scanItinerary(row)
	return it, translate(err, "find itinerary")
}

func (s *PostgresStore) FindItineraryByRefID(ctx context.Context, refID int64) (*models.Itinerary, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+itineraryColumns+` FROM itineraries WHERE ref_id = $1 AND ref_id <> 0`, refID)
	it, err := scanItinerary(row)
	return it, translate(err, "find itinerary by ref")
}

func (s *PostgresStore) CreateItinerary(ctx context.Context, it *models.Itinerary) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO itineraries (id, ref_id, name, depart_at, arrival_at, active, seaport_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7::uuid[])`,
		uuid.UUID(it.ID), it.RefID, it.Name, nullTime(it.DepartAt), nullTime(it.ArrivalAt), it.Active,
		pq.Array(uuidStrings(it.SeaportIDs)),
	)
	return translate(err, "insert itinerary")
}

// -----------------------------------------------------------------------------
// Manifests
// -----------------------------------------------------------------------------

const manifestColumns = `id, itinerary_id, reservation_id, reservation_status, ticket_id, origin_id, destination_id, person_id, register_id, created_at`

func scanManifest(row interface{ Scan(...any) error }) (*models.Manifest, error) {
	var (
		m                                  models.Manifest
		mid, iid, origin, dest, pid, regID uuid.UUID
	)
	if err := row.Scan(&mid, &iid, &m.ReservationID, &m.ReservationStatus, &m.TicketID,
		&origin, &dest, &pid, &regID, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.ID = id.ManifestID(mid)
	m.ItineraryID = id.ItineraryID(iid)
	m.OriginID = id.SeaportID(origin)
	m.DestinationID = id.SeaportID(dest)
	m.PersonID = id.PersonID(pid)
	m.RegisterID = id.RegisterID(regID)
	return &m, nil
}

func (s *PostgresStore) FindManifest(ctx context.Context, manifestID id.ManifestID) (*models.Manifest, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+manifestColumns+` FROM manifests WHERE id = $1`, uuid.UUID(manifestID))
	m, err := scanManifest(row)
	return m, translate(err, "find manifest")
}

func (s *PostgresStore) ListManifestsByItinerary(ctx context.Context, itineraryID id.ItineraryID) ([]*models.Manifest, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+manifestColumns+` FROM manifests WHERE itinerary_id = $1 ORDER BY seq`, uuid.UUID(itineraryID))
	if err != nil {
		return nil, translate(err, "list manifests")
	}
	defer rows.Close()

	var out []*models.Manifest
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, translate(err, "scan manifest")
		}
		out = append(out, m)
	}
	return out, translate(rows.Err(), "list manifests")
}

func (s *PostgresStore) CreateManifest(ctx context.Context, bundle models.ManifestBundle) error {
	if bundle.Manifest == nil || bundle.Person == nil || bundle.Register == nil {
		return fmt.Errorf("manifest bundle is incomplete: %w", sentinel.ErrInvalidState)
	}
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		if err := s.CreatePerson(ctx, bundle.Person); err != nil {
			return err
		}
		if err := s.CreateRegister(ctx, bundle.Register); err != nil {
			return err
		}
		m := bundle.Manifest
		_, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO manifests (`+manifestColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.UUID(m.ID), uuid.UUID(m.ItineraryID), m.ReservationID, m.ReservationStatus, m.TicketID,
			uuid.UUID(m.OriginID), uuid.UUID(m.DestinationID), uuid.UUID(m.PersonID), uuid.UUID(m.RegisterID), m.CreatedAt,
		)
		return translate(err, "insert manifest")
	})
}

// -----------------------------------------------------------------------------
// Registers
// -----------------------------------------------------------------------------

const registerColumns = `id, person_id, scope_kind, scope_id, kind, time, person_category, is_onboard, is_denied, denied_reason,
	is_unauthorized, unauthorized_rut, seaport_checkin, seaport_checkout, comments, is_resolved, resolved_register_id,
	resolution, idempotency_key, version, created_at`

func scanRegister(row interface{ Scan(...any) error }) (*models.Register, error) {
	var (
		r                         models.Register
		rid, scopeID              uuid.UUID
		personID, checkin         uuid.NullUUID
		checkout, resolvedWith    uuid.NullUUID
		scopeKind, kind, category string
		resolution                string
		idemKey                   sql.NullString
	)
	if err := row.Scan(&rid, &personID, &scopeKind, &scopeID, &kind, &r.Time, &category, &r.IsOnboard,
		&r.IsDenied, &r.DeniedReason, &r.IsUnauthorized, &r.UnauthorizedRut, &checkin, &checkout,
		&r.Comments, &r.IsResolved, &resolvedWith, &resolution, &idemKey, &r.Version, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ID = id.RegisterID(rid)
	r.ScopeKind = models.ScopeKind(scopeKind)
	r.ScopeID = scopeID
	r.Kind = models.Kind(kind)
	r.PersonCategory = models.Category(category)
	r.Resolution = models.Resolution(resolution)
	r.IdempotencyKey = idemKey.String
	if personID.Valid {
		p := id.PersonID(personID.UUID)
		r.PersonID = &p
	}
	if checkin.Valid {
		p := id.SeaportID(checkin.UUID)
		r.SeaportCheckin = &p
	}
	if checkout.Valid {
		p := id.SeaportID(checkout.UUID)
		r.SeaportCheckout = &p
	}
	if resolvedWith.Valid {
		w := id.RegisterID(resolvedWith.UUID)
		r.ResolvedWith = &w
	}
	return &r, nil
}

func (s *PostgresStore) FindRegister(ctx context.Context, registerID id.RegisterID) (*models.Register, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+registerColumns+` FROM registers WHERE id = $1`, uuid.UUID(registerID))
	r, err := scanRegister(row)
	return r, translate(err, "find register")
}

func (s *PostgresStore) FindRegisterByIdempotencyKey(ctx context.Context, key string) (*models.Register, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+registerColumns+` FROM registers WHERE idempotency_key = $1`, key)
	r, err := scanRegister(row)
	return r, translate(err, "find register by key")
}

// buildRegisterQuery renders a RegisterFilter as SQL.
func buildRegisterQuery(f RegisterFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.PersonID != nil {
		where = append(where, "r.person_id = "+arg(uuid.UUID(*f.PersonID)))
	}
	if len(f.ScopeIDs) > 0 {
		where = append(where, "r.scope_id = ANY("+arg(pq.Array(uuidStrings(f.ScopeIDs)))+"::uuid[])")
	}
	if len(f.Kinds) > 0 {
		kinds := make([]string, 0, len(f.Kinds))
		for _, k := range f.Kinds {
			kinds = append(kinds, string(k))
		}
		where = append(where, "r.kind = ANY("+arg(pq.Array(kinds))+"::text[])")
	}
	if f.Resolved != nil {
		where = append(where, "r.is_resolved = "+arg(*f.Resolved))
	}
	if len(f.Resolutions) > 0 {
		res := make([]string, 0, len(f.Resolutions))
		for _, r := range f.Resolutions {
			res = append(res, string(r))
		}
		where = append(where, "r.resolution = ANY("+arg(pq.Array(res))+"::text[])")
	}
	if f.Category != "" {
		where = append(where, "r.person_category = "+arg(string(f.Category)))
	}
	if f.ExcludeDenied {
		where = append(where, "NOT r.is_denied")
	}
	if f.ExcludeUnauthorized {
		where = append(where, "NOT r.is_unauthorized")
	}
	if f.ConfirmedOnly {
		where = append(where, `(r.scope_kind <> 'manifest' OR EXISTS (
			SELECT 1 FROM manifests m WHERE m.id = r.scope_id AND m.reservation_status = 1))`)
	}
	if f.ExcludeID != nil {
		where = append(where, "r.id <> "+arg(uuid.UUID(*f.ExcludeID)))
	}
	if !f.From.IsZero() {
		where = append(where, "r.time >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "r.time <= "+arg(f.To))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(prefixColumns(registerColumns, "r."))
	b.WriteString(" FROM registers r")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	switch f.Sort {
	case SortTimeDesc:
		b.WriteString(" ORDER BY r.time DESC, r.created_at DESC, r.seq DESC")
	case SortTimeAsc:
		b.WriteString(" ORDER BY r.time ASC, r.created_at ASC, r.seq ASC")
	default:
		b.WriteString(" ORDER BY r.seq")
	}
	if f.Limit > 0 {
		b.WriteString(" LIMIT " + arg(f.Limit))
	}
	return b.String(), args
}

func prefixColumns(cols, prefix string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func (s *PostgresStore) FindRegisters(ctx context.Context, filter RegisterFilter) ([]*models.Register, error) {
	query, args := buildRegisterQuery(filter)
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "find registers")
	}
	defer rows.Close()

	var out []*models.Register
	for rows.Next() {
		r, err := scanRegister(rows)
		if err != nil {
			return nil, translate(err, "scan register")
		}
		out = append(out, r)
	}
	return out, translate(rows.Err(), "find registers")
}

func (s *PostgresStore) CreateRegister(ctx context.Context, r *models.Register) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO registers (`+registerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		uuid.UUID(r.ID), nullUUID(r.PersonID), string(r.ScopeKind), r.ScopeID, string(r.Kind), r.Time,
		string(r.PersonCategory), r.IsOnboard, r.IsDenied, r.DeniedReason, r.IsUnauthorized, r.UnauthorizedRut,
		nullUUID(r.SeaportCheckin), nullUUID(r.SeaportCheckout), r.Comments, r.IsResolved, nullUUID(r.ResolvedWith),
		string(r.Resolution), nullString(r.IdempotencyKey), r.Version, r.CreatedAt,
	)
	return translate(err, "insert register")
}

// updateVersioned writes the mutable register fields when the stored
// version still equals r.Version.
func (s *PostgresStore) updateVersioned(ctx context.Context, r *models.Register) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE registers SET
			kind = $3, time = $4, is_onboard = $5, seaport_checkin = $6, seaport_checkout = $7, comments = $8,
			is_resolved = $9, resolved_register_id = $10, resolution = $11, version = version + 1
		WHERE id = $1 AND version = $2`,
		uuid.UUID(r.ID), r.Version, string(r.Kind), r.Time, r.IsOnboard, nullUUID(r.SeaportCheckin),
		nullUUID(r.SeaportCheckout), r.Comments, r.IsResolved, nullUUID(r.ResolvedWith), string(r.Resolution),
	)
	if err != nil {
		return translate(err, "update register")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate(err, "update register")
	}
	if n == 0 {
		if _, err := s.FindRegister(ctx, r.ID); err != nil {
			return err
		}
		return fmt.Errorf("register %s at version %d is stale: %w", r.ID, r.Version, sentinel.ErrConflict)
	}
	r.Version++
	return nil
}

func (s *PostgresStore) UpdateRegister(ctx context.Context, r *models.Register) error {
	return s.updateVersioned(ctx, r)
}

func (s *PostgresStore) ResolvePair(ctx context.Context, counter, closing *models.Register) error {
	counterVersion, closingVersion := counter.Version, closing.Version
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		if err := s.updateVersioned(ctx, counter); err != nil {
			return err
		}
		return s.updateVersioned(ctx, closing)
	})
	if err != nil {
		// A rolled back pair keeps the caller's versions unchanged.
		counter.Version, closing.Version = counterVersion, closingVersion
	}
	return err
}
