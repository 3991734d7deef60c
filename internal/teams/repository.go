package teams

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-fest/backend/internal/models"
	"github.com/campus-fest/backend/internal/registrations"
)

// Repository is the pgx-backed Store implementation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a teams repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const teamColumns = `id, event_id, leader_id, name, status, max_size, created_at, updated_at`
const memberColumns = `id, team_id, event_id, user_id, email, status, form_answers, invited_at, responded_at`

func scanTeam(row interface{ Scan(...any) error }) (*models.Team, error) {
	var t models.Team
	err := row.Scan(&t.ID, &t.EventID, &t.LeaderID, &t.Name, &t.Status, &t.MaxSize, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanMember(row interface{ Scan(...any) error }) (models.TeamMember, error) {
	var m models.TeamMember
	err := row.Scan(&m.ID, &m.TeamID, &m.EventID, &m.UserID, &m.Email, &m.Status,
		&m.FormAnswers, &m.InvitedAt, &m.RespondedAt)
	return m, err
}

// GetEvent returns the event, mapped to a rejection when missing.
func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `SELECT id, name, description, venue, type, status, registration_limit, registration_count,
			start_date, end_date, registration_deadline, purchase_limit_per_user, form_config, created_by, created_at, updated_at
		FROM events WHERE id = $1`
	var e models.Event
	err := r.pool.QueryRow(ctx, q, id).Scan(&e.ID, &e.Name, &e.Description, &e.Venue, &e.Type, &e.Status,
		&e.RegistrationLimit, &e.RegistrationCount, &e.StartDate, &e.EndDate,
		&e.RegistrationDeadline, &e.PurchaseLimitPerUser, &e.FormConfig,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetTeam loads a team and its roster.
func (r *Repository) GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	team, err := scanTeam(r.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+memberColumns+` FROM team_members
		WHERE team_id = $1 ORDER BY invited_at ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		team.Members = append(team.Members, m)
	}
	return team, rows.Err()
}

// TeamsForUser returns teams the user leads or is invited to.
func (r *Repository) TeamsForUser(ctx context.Context, userID uuid.UUID, email string) ([]*models.Team, error) {
	const q = `SELECT DISTINCT t.id, t.event_id, t.leader_id, t.name, t.status, t.max_size, t.created_at, t.updated_at
		FROM teams t
		LEFT JOIN team_members m ON m.team_id = t.id
		WHERE t.leader_id = $1 OR m.user_id = $1 OR m.email = $2
		ORDER BY t.created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var teams []*models.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// AcceptedElsewhere reports an accepted seat in another team for the event.
// The partial unique index enforces the same invariant at write time.
func (r *Repository) AcceptedElsewhere(ctx context.Context, eventID, userID, excludeTeam uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM team_members
		WHERE event_id = $1 AND user_id = $2 AND status = 'accepted' AND team_id <> $3)`
	var found bool
	err := r.pool.QueryRow(ctx, q, eventID, userID, excludeTeam).Scan(&found)
	return found, err
}

// CreateTeam inserts the team row and one pending invitation per email.
func (r *Repository) CreateTeam(ctx context.Context, team *models.Team, emails []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `INSERT INTO teams (event_id, leader_id, name, status, max_size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		team.EventID, team.LeaderID, team.Name, team.Status, team.MaxSize).
		Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrLeaderHasTeam
		}
		return err
	}

	for _, email := range emails {
		m, err := insertMember(ctx, tx, team, email)
		if err != nil {
			return err
		}
		team.Members = append(team.Members, *m)
	}
	return tx.Commit(ctx)
}

// AddMember appends a pending invitation, pulling a ready team back into
// forming because its consensus is now stale.
func (r *Repository) AddMember(ctx context.Context, team *models.Team, member *models.TeamMember) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	m, err := insertMember(ctx, tx, team, member.Email)
	if err != nil {
		return err
	}
	*member = *m
	_, err = tx.Exec(ctx, `UPDATE teams SET status = 'forming', updated_at = NOW()
		WHERE id = $1 AND status = 'ready'`, team.ID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertMember(ctx context.Context, tx pgx.Tx, team *models.Team, email string) (*models.TeamMember, error) {
	m := models.TeamMember{TeamID: team.ID, EventID: team.EventID, Email: email, Status: models.MemberPending}
	err := tx.QueryRow(ctx, `INSERT INTO team_members (team_id, event_id, email, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, invited_at`, m.TeamID, m.EventID, m.Email, m.Status).
		Scan(&m.ID, &m.InvitedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateInvite
		}
		return nil, err
	}
	return &m, nil
}

// SetMemberResponse records an accept or decline. The pending guard makes a
// response final; the partial unique index turns a racing second accept for
// the same event into ErrAcceptedElsewhere.
func (r *Repository) SetMemberResponse(ctx context.Context, memberID, userID uuid.UUID, status models.MemberStatus, answers []byte) (*models.Team, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var teamID uuid.UUID
	err = tx.QueryRow(ctx, `UPDATE team_members
		SET status = $1, user_id = $2, form_answers = $3, responded_at = NOW()
		WHERE id = $4 AND status = 'pending'
		RETURNING team_id`, status, userID, answers, memberID).Scan(&teamID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlreadyResponded
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAcceptedElsewhere
		}
		return nil, err
	}

	if status == models.MemberAccepted {
		var pendingOrDeclined int
		err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM team_members
			WHERE team_id = $1 AND status <> 'accepted'`, teamID).Scan(&pendingOrDeclined)
		if err != nil {
			return nil, err
		}
		if pendingOrDeclined == 0 {
			_, err = tx.Exec(ctx, `UPDATE teams SET status = 'ready', updated_at = NOW()
				WHERE id = $1 AND status = 'forming'`, teamID)
			if err != nil {
				return nil, err
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetTeam(ctx, teamID)
}

// RemoveMember deletes one roster entry.
func (r *Repository) RemoveMember(ctx context.Context, teamID, memberID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM team_members WHERE id = $1 AND team_id = $2`, memberID, teamID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotMember
	}
	return nil
}

// RegisterTeam is the all-or-nothing group admission. One transaction flips
// the team to registered and claims one capacity slot per seat; a single
// capacity failure rolls the whole thing back, so either the full roster is
// admitted or nobody is.
func (r *Repository) RegisterTeam(ctx context.Context, team *models.Team, seats []MemberAdmission) ([]*models.Registration, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE teams SET status = 'registered', updated_at = NOW()
		WHERE id = $1 AND status = 'ready'`, team.ID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrTeamNotReady
	}

	var admitted []*models.Registration
	for _, seat := range seats {
		// Members who registered individually keep their slot; they are
		// relinked to the team, not admitted twice.
		var existing uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM registrations
			WHERE event_id = $1 AND user_id = $2 AND status NOT IN ('cancelled', 'rejected')`,
			team.EventID, seat.UserID).Scan(&existing)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE registrations SET team_id = $1, updated_at = NOW() WHERE id = $2`, team.ID, existing)
			if err != nil {
				return nil, err
			}
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}

		if err := registrations.ClaimSlot(ctx, tx, team.EventID); err != nil {
			return nil, err
		}
		reg := &models.Registration{
			EventID:       team.EventID,
			UserID:        seat.UserID,
			Status:        models.RegistrationRegistered,
			PaymentStatus: models.PaymentPending,
			TicketID:      &seat.TicketID,
			TicketQR:      seat.TicketQR,
			TeamID:        &team.ID,
			FormAnswers:   seat.FormAnswers,
		}
		if err := registrations.InsertTx(ctx, tx, reg); err != nil {
			return nil, err
		}
		admitted = append(admitted, reg)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return admitted, nil
}

// Disband deletes an unregistered team and its roster by cascade.
func (r *Repository) Disband(ctx context.Context, teamID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM teams WHERE id = $1 AND status <> 'registered'`, teamID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTeamRegistered
	}
	return nil
}

// UserEmail resolves a user id to an email.
func (r *Repository) UserEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	return email, err
}
