package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/SeanSwan/StudioAppBack/internal/models"
	"github.com/SeanSwan/StudioAppBack/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func TestBookSessionDeductsCreditAndSchedules(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	clientID := createTestAccount(t, ctx, pool, "client", 5)
	trainerID := createTestAccount(t, ctx, pool, "trainer", 0)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, clientID, trainerID) })

	typeID := createTestSessionType(t, ctx, pool, 60, 0, 15, 2)
	createActiveAssignment(t, ctx, pool, clientID, trainerID)
	startsAt := time.Date(2030, 3, 15, 10, 0, 0, 0, time.UTC)
	createFullDayAvailability(t, ctx, pool, trainerID, startsAt)

	result, err := service.BookSession(ctx, clientID, BookSessionInput{
		TrainerID:     trainerID,
		SessionTypeID: typeID,
		StartsAt:      startsAt,
	})
	if err != nil {
		t.Fatalf("BookSession: %v", err)
	}

	if result.Session.Status != models.SessionScheduled {
		t.Fatalf("expected scheduled session, got %q", result.Session.Status)
	}
	if !result.Session.SessionDeducted || result.Session.DeductionDate == nil {
		t.Fatalf("expected credit settled at booking, got %+v", result.Session)
	}
	if result.CreditBalance != 3 {
		t.Fatalf("expected balance 3 after deducting 2, got %d", result.CreditBalance)
	}

	client, err := repository.NewUserRepository(pool).GetByID(ctx, clientID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if client.AvailableSessions != 3 {
		t.Fatalf("expected persisted balance 3, got %d", client.AvailableSessions)
	}
}

func TestBookSessionRequiresAssignment(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	clientID := createTestAccount(t, ctx, pool, "client", 5)
	trainerID := createTestAccount(t, ctx, pool, "trainer", 0)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, clientID, trainerID) })

	typeID := createTestSessionType(t, ctx, pool, 60, 0, 0, 1)
	startsAt := time.Date(2030, 3, 15, 10, 0, 0, 0, time.UTC)
	createFullDayAvailability(t, ctx, pool, trainerID, startsAt)

	_, err := service.BookSession(ctx, clientID, BookSessionInput{
		TrainerID:     trainerID,
		SessionTypeID: typeID,
		StartsAt:      startsAt,
	})
	if !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("expected ErrNotAssigned, got %v", err)
	}
}

func TestBookSessionOutsideAvailability(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	clientID := createTestAccount(t, ctx, pool, "client", 5)
	trainerID := createTestAccount(t, ctx, pool, "trainer", 0)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, clientID, trainerID) })

	// 60 minute session with a 15 minute tail buffer.
	typeID := createTestSessionType(t, ctx, pool, 60, 0, 15, 1)
	createActiveAssignment(t, ctx, pool, clientID, trainerID)

	day := time.Date(2030, 3, 15, 0, 0, 0, 0, time.UTC)
	createTestAvailability(t, ctx, pool, trainerID, day, 9*60, 17*60)

	// 16:30 + 60 + 15 runs past the 17:00 close.
	_, err := service.BookSession(ctx, clientID, BookSessionInput{
		TrainerID:     trainerID,
		SessionTypeID: typeID,
		StartsAt:      day.Add(16*time.Hour + 30*time.Minute),
	})
	if !errors.Is(err, ErrOutsideAvailability) {
		t.Fatalf("expected ErrOutsideAvailability, got %v", err)
	}

	// 10:00 fits comfortably.
	if _, err := service.BookSession(ctx, clientID, BookSessionInput{
		TrainerID:     trainerID,
		SessionTypeID: typeID,
		StartsAt:      day.Add(10 * time.Hour),
	}); err != nil {
		t.Fatalf("expected 10:00 booking to succeed, got %v", err)
	}
}

func TestBookSessionBlockedOverrideAtDayEdge(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	clientID := createTestAccount(t, ctx, pool, "client", 5)
	trainerID := createTestAccount(t, ctx, pool, "trainer", 0)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, clientID, trainerID) })

	typeID := createTestSessionType(t, ctx, pool, 60, 0, 15, 1)
	createActiveAssignment(t, ctx, pool, clientID, trainerID)

	day := time.Date(2030, 3, 18, 0, 0, 0, 0, time.UTC)
	createFullDayAvailability(t, ctx, pool, trainerID, day)
	// Created after the full-day rule, so the block wins the overlap.
	createBlockedOverride(t, ctx, pool, trainerID, day, 0, 2*60)

	// The occupied span starts minutes after UTC midnight; the override
	// for that day has to be part of the resolved picture even at the
	// very edge of the fetch window.
	_, err := service.BookSession(ctx, clientID, BookSessionInput{
		TrainerID:     trainerID,
		SessionTypeID: typeID,
		StartsAt:      day.Add(15 * time.Minute),
	})
	if !errors.Is(err, ErrOutsideAvailability) {
		t.Fatalf("expected ErrOutsideAvailability, got %v", err)
	}

	// 03:00 is past the block and inside the full-day rule.
	if _, err := service.BookSession(ctx, clientID, BookSessionInput{
		TrainerID:     trainerID,
		SessionTypeID: typeID,
		StartsAt:      day.Add(3 * time.Hour),
	}); err != nil {
		t.Fatalf("expected 03:00 booking to succeed, got %v", err)
	}
}

func TestBookSessionBufferAwareConflict(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	firstClient := createTestAccount(t, ctx, pool, "client", 5)
	secondClient := createTestAccount(t, ctx, pool, "client", 5)
	trainerID := createTestAccount(t, ctx, pool, "trainer", 0)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, firstClient, secondClient, trainerID) })

	typeID := createTestSessionType(t, ctx, pool, 60, 0, 15, 1)
	createActiveAssignment(t, ctx, pool, firstClient, trainerID)
	createActiveAssignment(t, ctx, pool, secondClient, trainerID)
	startsAt := time.Date(2030, 3, 15, 10, 0, 0, 0, time.UTC)
	createFullDayAvailability(t, ctx, pool, trainerID, startsAt)

	if _, err := service.BookSession(ctx, firstClient, BookSessionInput{
		TrainerID:     trainerID,
		SessionTypeID: typeID,
		StartsAt:      startsAt,
	}); err != nil {
		t.Fatalf("first BookSession: %v", err)
	}

	// One minute into the first session's tail buffer.
	_, err := service.BookSession(ctx, secondClient, BookSessionInput{
		TrainerID:     trainerID,
		SessionTypeID: typeID,
		StartsAt:      startsAt.Add(74 * time.Minute),
	})
	if !errors.Is(err, ErrDoubleBooked) {
		t.Fatalf("expected ErrDoubleBooked, got %v", err)
	}

	// Exactly at the buffer edge is a legal back-to-back booking.
	if _, err := service.BookSession(ctx, secondClient, BookSessionInput{
		TrainerID:     trainerID,
		SessionTypeID: typeID,
		StartsAt:      startsAt.Add(75 * time.Minute),
	}); err != nil {
		t.Fatalf("expected back-to-back booking to succeed, got %v", err)
	}
}

func TestBookSessionInsufficientCreditsLeavesNoSession(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	clientID := createTestAccount(t, ctx, pool, "client", 1)
	trainerID := createTestAccount(t, ctx, pool, "trainer", 0)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, clientID, trainerID) })

	typeID := createTestSessionType(t, ctx, pool, 60, 0, 0, 2)
	createActiveAssignment(t, ctx, pool, clientID, trainerID)
	startsAt := time.Date(2030, 3, 15, 10, 0, 0, 0, time.UTC)
	createFullDayAvailability(t, ctx, pool, trainerID, startsAt)

	_, err := service.BookSession(ctx, clientID, BookSessionInput{
		TrainerID:     trainerID,
		SessionTypeID: typeID,
		StartsAt:      startsAt,
	})
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE client_id = $1`, clientID).Scan(&count); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed booking must leave no session, found %d", count)
	}

	client, err := repository.NewUserRepository(pool).GetByID(ctx, clientID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if client.AvailableSessions != 1 {
		t.Fatalf("failed booking must not touch credits, got %d", client.AvailableSessions)
	}
}

func TestConcurrentBookingsSingleWinner(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	trainerID := createTestAccount(t, ctx, pool, "trainer", 0)
	const attempts = 6
	clientIDs := make([]int64, attempts)
	for i := range clientIDs {
		clientIDs[i] = createTestAccount(t, ctx, pool, "client", 1)
		createActiveAssignment(t, ctx, pool, clientIDs[i], trainerID)
	}
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, append(clientIDs, trainerID)...) })

	typeID := createTestSessionType(t, ctx, pool, 60, 0, 0, 1)
	startsAt := time.Date(2030, 3, 15, 10, 0, 0, 0, time.UTC)
	createFullDayAvailability(t, ctx, pool, trainerID, startsAt)

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.BookSession(ctx, clientIDs[i], BookSessionInput{
				TrainerID:     trainerID,
				SessionTypeID: typeID,
				StartsAt:      startsAt,
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrDoubleBooked), errors.Is(err, ErrBusy):
		default:
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}

	// Exactly one credit left the system.
	var remaining int
	if err := pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(available_sessions), 0) FROM users WHERE id = ANY($1)`,
		clientIDs,
	).Scan(&remaining); err != nil {
		t.Fatalf("sum credits: %v", err)
	}
	if remaining != attempts-1 {
		t.Fatalf("expected %d credits remaining, got %d", attempts-1, remaining)
	}
}

func TestClaimOpenSlotWithoutAssignment(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	clientID := createTestAccount(t, ctx, pool, "client", 2)
	trainerID := createTestAccount(t, ctx, pool, "trainer", 0)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, clientID, trainerID) })

	typeID := createTestSessionType(t, ctx, pool, 60, 0, 0, 1)
	startsAt := time.Date(2030, 3, 15, 10, 0, 0, 0, time.UTC)
	createFullDayAvailability(t, ctx, pool, trainerID, startsAt)

	slots, err := service.PublishOpenSlots(ctx, trainerID, "trainer", PublishSlotsInput{
		SessionTypeID: typeID,
		Starts:        []time.Time{startsAt},
	})
	if err != nil {
		t.Fatalf("PublishOpenSlots: %v", err)
	}
	if len(slots) != 1 || slots[0].Status != models.SessionAvailable {
		t.Fatalf("expected one open slot, got %+v", slots)
	}

	result, err := service.BookSession(ctx, clientID, BookSessionInput{SlotID: &slots[0].ID})
	if err != nil {
		t.Fatalf("claim open slot: %v", err)
	}
	if result.Session.Status != models.SessionScheduled {
		t.Fatalf("expected scheduled after claim, got %q", result.Session.Status)
	}
	if result.Session.ClientID == nil || *result.Session.ClientID != clientID {
		t.Fatalf("expected claimed by %d, got %+v", clientID, result.Session.ClientID)
	}

	// Second claim of the same slot loses.
	otherID := createTestAccount(t, ctx, pool, "client", 2)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, otherID) })
	if _, err := service.BookSession(ctx, otherID, BookSessionInput{SlotID: &slots[0].ID}); !errors.Is(err, ErrDoubleBooked) {
		t.Fatalf("expected ErrDoubleBooked on second claim, got %v", err)
	}
}

func TestCancelEarlyRefundsCredit(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	clientID := createTestAccount(t, ctx, pool, "client", 2)
	trainerID := createTestAccount(t, ctx, pool, "trainer", 0)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, clientID, trainerID) })

	typeID := createTestSessionType(t, ctx, pool, 60, 0, 0, 2)
	createActiveAssignment(t, ctx, pool, clientID, trainerID)
	startsAt := time.Date(2030, 3, 15, 10, 0, 0, 0, time.UTC)
	createFullDayAvailability(t, ctx, pool, trainerID, startsAt)

	result, err := service.BookSession(ctx, clientID, BookSessionInput{
		TrainerID:     trainerID,
		SessionTypeID: typeID,
		StartsAt:      startsAt,
	})
	if err != nil {
		t.Fatalf("BookSession: %v", err)
	}

	cancelled, err := service.UpdateStatus(ctx, clientID, "client", result.Session.ID, "cancelled", nil)
	if err != nil {
		t.Fatalf("UpdateStatus cancel: %v", err)
	}
	if cancelled.Status != models.SessionCancelled {
		t.Fatalf("expected cancelled, got %q", cancelled.Status)
	}
	if cancelled.SessionDeducted {
		t.Fatal("expected deduction cleared on refunded cancel")
	}

	client, err := repository.NewUserRepository(pool).GetByID(ctx, clientID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if client.AvailableSessions != 2 {
		t.Fatalf("expected full refund back to 2, got %d", client.AvailableSessions)
	}
}

func TestSweepDeductionsSettlesPastSessions(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	clientID := createTestAccount(t, ctx, pool, "client", 3)
	brokeID := createTestAccount(t, ctx, pool, "client", 0)
	trainerID := createTestAccount(t, ctx, pool, "trainer", 0)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, clientID, brokeID, trainerID) })

	typeID := createTestSessionType(t, ctx, pool, 60, 0, 0, 2)

	// Past sessions that were never charged, e.g. granted by an admin.
	past := time.Now().UTC().Add(-48 * time.Hour)
	sessionRepo := repository.NewSessionRepository(pool)
	for _, cid := range []int64{clientID, brokeID} {
		cid := cid
		if _, err := sessionRepo.Create(ctx, repository.CreateSessionInput{
			TrainerID:       &trainerID,
			ClientID:        &cid,
			SessionTypeID:   typeID,
			StartsAt:        past,
			DurationMinutes: 60,
			Status:          models.SessionConfirmed,
		}); err != nil {
			t.Fatalf("seed session: %v", err)
		}
	}

	result, err := service.SweepDeductions(ctx)
	if err != nil {
		t.Fatalf("SweepDeductions: %v", err)
	}
	if result.Processed < 2 || result.Deducted < 1 || result.NoCredit < 1 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}

	client, err := repository.NewUserRepository(pool).GetByID(ctx, clientID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if client.AvailableSessions != 1 {
		t.Fatalf("expected 1 credit after sweep, got %d", client.AvailableSessions)
	}

	var statuses []string
	rows, err := pool.Query(ctx,
		`SELECT status FROM sessions WHERE client_id = ANY($1)`, []int64{clientID, brokeID})
	if err != nil {
		t.Fatalf("query statuses: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			t.Fatalf("scan: %v", err)
		}
		statuses = append(statuses, status)
	}
	for _, status := range statuses {
		if status != models.SessionCompleted {
			t.Fatalf("expected swept sessions completed, got %v", statuses)
		}
	}
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func newIntegrationSessionService(pool *pgxpool.Pool) *SessionService {
	return NewSessionService(pool, SessionServiceOpts{
		LockWait: 5 * time.Second,
	})
}

func createTestAccount(t *testing.T, ctx context.Context, pool *pgxpool.Pool, role string, credits int) int64 {
	t.Helper()

	userRepo := repository.NewUserRepository(pool)
	user := &models.User{
		Email:             fmt.Sprintf("booking-test-%s-%d@example.com", role, time.Now().UnixNano()),
		PasswordHash:      "test-hash",
		Role:              role,
		AvailableSessions: credits,
	}
	if err := userRepo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser(%s): %v", role, err)
	}
	return user.ID
}

func createTestSessionType(t *testing.T, ctx context.Context, pool *pgxpool.Pool, durationMin, bufBefore, bufAfter, credits int) int64 {
	t.Helper()

	sessionType, err := repository.NewSessionTypeRepository(pool).Create(ctx, repository.SessionTypeInput{
		Name:            fmt.Sprintf("test-type-%d", time.Now().UnixNano()),
		DurationMinutes: durationMin,
		BufferBeforeMin: bufBefore,
		BufferAfterMin:  bufAfter,
		CreditsRequired: credits,
	})
	if err != nil {
		t.Fatalf("create session type: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM sessions WHERE session_type_id = $1`, sessionType.ID)
		_, _ = pool.Exec(ctx, `DELETE FROM session_types WHERE id = $1`, sessionType.ID)
	})
	return sessionType.ID
}

func createActiveAssignment(t *testing.T, ctx context.Context, pool *pgxpool.Pool, clientID, trainerID int64) {
	t.Helper()

	if _, err := repository.NewAssignmentRepository(pool).Create(ctx, clientID, trainerID, models.AssignmentActive, nil); err != nil {
		t.Fatalf("create assignment: %v", err)
	}
}

// createTestAvailability adds an availability override for the given day.
func createTestAvailability(t *testing.T, ctx context.Context, pool *pgxpool.Pool, trainerID int64, day time.Time, startMin, endMin int) {
	t.Helper()

	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from
	if _, err := repository.NewAvailabilityRepository(pool).Create(ctx, repository.CreateAvailabilityInput{
		TrainerID:     trainerID,
		EffectiveFrom: &from,
		EffectiveTo:   &to,
		StartMinute:   startMin,
		EndMinute:     endMin,
		IsRecurring:   false,
		Kind:          models.AvailabilityAvailable,
	}); err != nil {
		t.Fatalf("create availability: %v", err)
	}
}

func createFullDayAvailability(t *testing.T, ctx context.Context, pool *pgxpool.Pool, trainerID int64, day time.Time) {
	t.Helper()
	createTestAvailability(t, ctx, pool, trainerID, day, 0, 1440)
}

func createBlockedOverride(t *testing.T, ctx context.Context, pool *pgxpool.Pool, trainerID int64, day time.Time, startMin, endMin int) {
	t.Helper()

	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from
	if _, err := repository.NewAvailabilityRepository(pool).Create(ctx, repository.CreateAvailabilityInput{
		TrainerID:     trainerID,
		EffectiveFrom: &from,
		EffectiveTo:   &to,
		StartMinute:   startMin,
		EndMinute:     endMin,
		IsRecurring:   false,
		Kind:          models.AvailabilityBlocked,
	}); err != nil {
		t.Fatalf("create blocked override: %v", err)
	}
}

func cleanupTestUsers(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userIDs ...int64) {
	t.Helper()

	if len(userIDs) == 0 {
		return
	}

	if _, err := pool.Exec(ctx, `DELETE FROM sessions WHERE trainer_id = ANY($1) OR client_id = ANY($1) OR cancelled_by = ANY($1)`, userIDs); err != nil {
		t.Fatalf("cleanup sessions: %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM client_trainer_assignments WHERE client_id = ANY($1) OR trainer_id = ANY($1)`, userIDs); err != nil {
		t.Fatalf("cleanup assignments: %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM trainer_availability WHERE trainer_id = ANY($1)`, userIDs); err != nil {
		t.Fatalf("cleanup availability: %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM users WHERE id = ANY($1)`, userIDs); err != nil {
		t.Fatalf("cleanup users: %v", err)
	}
}
