// internal/store/application_store.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"agrimarket-onboarding/internal/common/logger"
	"agrimarket-onboarding/internal/models"
)

const oneActiveIndexName = "applications_one_active_idx"

// ApplicationStore persists application records in Postgres.
type ApplicationStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewApplicationStore(db *sql.DB, log logger.Logger) *ApplicationStore {
	return &ApplicationStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "application-store"}),
	}
}

const applicationColumns = `
	id, applicant_id, application_type, status, version,
	profile, documents, admin_review,
	submitted_at, reviewed_at, approved_at, rejected_at, suspended_at,
	is_active, created_at, updated_at`

// Insert writes a new application version and, when role is non-empty, moves
// the applicant account to that role in the same transaction, so the record
// and the role change land or fail as one unit. A collision on the
// active-status index is reported as models.ErrDuplicateActiveApplication.
func (s *ApplicationStore) Insert(ctx context.Context, app *models.Application, accountID string, role models.Role) error {
	profileJSON, documentsJSON, reviewJSON, err := marshalJSONColumns(app)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO applications (
			id, applicant_id, application_type, status, version,
			profile, documents, admin_review,
			submitted_at, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		app.ID,
		app.ApplicantID,
		string(app.Type),
		string(app.Status),
		app.Version,
		profileJSON,
		documentsJSON,
		reviewJSON,
		app.SubmittedAt,
		app.IsActive,
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, oneActiveIndexName) {
			return models.ErrDuplicateActiveApplication
		}
		return fmt.Errorf("insert application: %w", err)
	}

	if role != "" {
		if err := updateRoleTx(ctx, tx, accountID, role); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Update rewrites the mutable columns of an existing record. Documents and
// the review block travel with the status so a decision lands in one write,
// and a non-empty role moves the applicant account in the same transaction.
func (s *ApplicationStore) Update(ctx context.Context, app *models.Application, accountID string, role models.Role) error {
	profileJSON, documentsJSON, reviewJSON, err := marshalJSONColumns(app)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE applications SET
			status = $2,
			profile = $3,
			documents = $4,
			admin_review = $5,
			reviewed_at = $6,
			approved_at = $7,
			rejected_at = $8,
			suspended_at = $9,
			is_active = $10,
			updated_at = $11
		WHERE id = $1`,
		app.ID,
		string(app.Status),
		profileJSON,
		documentsJSON,
		reviewJSON,
		nullTime(app.ReviewedAt),
		nullTime(app.ApprovedAt),
		nullTime(app.RejectedAt),
		nullTime(app.SuspendedAt),
		app.IsActive,
		app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return models.ErrNotFound
	}

	if role != "" {
		if err := updateRoleTx(ctx, tx, accountID, role); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetByID fetches one application record.
func (s *ApplicationStore) GetByID(ctx context.Context, id string) (*models.Application, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	return scanApplication(row)
}

// Latest returns the newest version for an applicant and type, or
// models.ErrNotFound when nothing was ever submitted.
func (s *ApplicationStore) Latest(ctx context.Context, applicantID string, appType models.ApplicationType) (*models.Application, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE applicant_id = $1 AND application_type = $2
		ORDER BY version DESC
		LIMIT 1`,
		applicantID, string(appType))
	return scanApplication(row)
}

// FindActive returns the record currently holding the active slot for an
// applicant and type, if any.
func (s *ApplicationStore) FindActive(ctx context.Context, applicantID string, appType models.ApplicationType) (*models.Application, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE applicant_id = $1 AND application_type = $2
		  AND status = ANY($3)
		LIMIT 1`,
		applicantID, string(appType), pq.Array(activeStatusStrings()))
	return scanApplication(row)
}

// NextVersion returns 1 + the highest version ever recorded for the pair.
func (s *ApplicationStore) NextVersion(ctx context.Context, applicantID string, appType models.ApplicationType) (int, error) {
	var max int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM applications
		WHERE applicant_id = $1 AND application_type = $2`,
		applicantID, string(appType)).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("next version: %w", err)
	}
	return max + 1, nil
}

// History returns every version for an applicant and type, newest first.
func (s *ApplicationStore) History(ctx context.Context, applicantID string, appType models.ApplicationType) ([]*models.Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE applicant_id = $1 AND application_type = $2
		ORDER BY version DESC`,
		applicantID, string(appType))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return collectApplications(rows)
}

// List returns one page of applications matching the filter plus the total
// match count. Superseded records are excluded; search matches the
// type-specific display name in the profile.
func (s *ApplicationStore) List(ctx context.Context, filter models.ApplicationFilter) ([]*models.Application, int, error) {
	where := []string{"is_active = true"}
	args := []interface{}{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("application_type = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf(
			"COALESCE(profile->>'farmName', profile->>'businessName', '') ILIKE $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM applications WHERE "+whereClause, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+applicationColumns+`
		FROM applications
		WHERE %s
		ORDER BY submitted_at DESC
		LIMIT $%d OFFSET $%d`, whereClause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	apps, err := collectApplications(rows)
	if err != nil {
		return nil, 0, err
	}
	return apps, total, nil
}

// Stats aggregates application counts by type and status.
func (s *ApplicationStore) Stats(ctx context.Context) ([]models.StatusCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT application_type, status, COUNT(*)
		FROM applications
		GROUP BY application_type, status
		ORDER BY application_type, status`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var out []models.StatusCount
	for rows.Next() {
		var sc models.StatusCount
		if err := rows.Scan(&sc.Type, &sc.Status, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// AppendAudit records an audit trail entry. Failures are logged and swallowed
// so the calling write path is never blocked on the trail.
func (s *ApplicationStore) AppendAudit(ctx context.Context, eventType, resourceID string, details map[string]interface{}) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		s.logger.Warn("failed to marshal audit details", map[string]interface{}{"error": err})
		detailsJSON = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		eventType,
		"application",
		resourceID,
		detailsJSON,
		time.Now().UTC(),
	)
	if err != nil {
		s.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":         err,
			"eventType":     eventType,
			"applicationId": resourceID,
		})
	}
}

func activeStatusStrings() []string {
	out := make([]string, len(models.ActiveStatuses))
	for i, st := range models.ActiveStatuses {
		out[i] = string(st)
	}
	return out
}

func isUniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	return pqErr.Code == "23505" && (constraint == "" || pqErr.Constraint == constraint)
}

func marshalJSONColumns(app *models.Application) ([]byte, []byte, []byte, error) {
	profileJSON, err := json.Marshal(app.Profile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal profile: %w", err)
	}
	documentsJSON, err := json.Marshal(app.Documents)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal documents: %w", err)
	}
	var reviewJSON []byte
	if app.Review != nil {
		reviewJSON, err = json.Marshal(app.Review)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal admin review: %w", err)
		}
	}
	return profileJSON, documentsJSON, reviewJSON, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app           models.Application
		profileJSON   []byte
		documentsJSON []byte
		reviewJSON    []byte
		reviewedAt    sql.NullTime
		approvedAt    sql.NullTime
		rejectedAt    sql.NullTime
		suspendedAt   sql.NullTime
	)

	err := row.Scan(
		&app.ID, &app.ApplicantID, &app.Type, &app.Status, &app.Version,
		&profileJSON, &documentsJSON, &reviewJSON,
		&app.SubmittedAt, &reviewedAt, &approvedAt, &rejectedAt, &suspendedAt,
		&app.IsActive, &app.CreatedAt, &app.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan application: %w", err)
	}

	if len(profileJSON) > 0 {
		if err := json.Unmarshal(profileJSON, &app.Profile); err != nil {
			return nil, fmt.Errorf("unmarshal profile: %w", err)
		}
	}
	if len(documentsJSON) > 0 {
		if err := json.Unmarshal(documentsJSON, &app.Documents); err != nil {
			return nil, fmt.Errorf("unmarshal documents: %w", err)
		}
	}
	if len(reviewJSON) > 0 {
		app.Review = &models.AdminReview{}
		if err := json.Unmarshal(reviewJSON, app.Review); err != nil {
			return nil, fmt.Errorf("unmarshal admin review: %w", err)
		}
	}

	app.ReviewedAt = timePtr(reviewedAt)
	app.ApprovedAt = timePtr(approvedAt)
	app.RejectedAt = timePtr(rejectedAt)
	app.SuspendedAt = timePtr(suspendedAt)
	return &app, nil
}

func collectApplications(rows *sql.Rows) ([]*models.Application, error) {
	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
