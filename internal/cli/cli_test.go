package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrlokans/lending/internal/config"
	"github.com/mrlokans/lending/internal/database"
	"github.com/mrlokans/lending/internal/database/books"
	"github.com/mrlokans/lending/internal/database/catalog"
	"github.com/mrlokans/lending/internal/database/loans"
	"github.com/mrlokans/lending/internal/entities"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.BcryptCost = bcrypt.MinCost
	return cfg
}

func TestCreateUserCommand_ParseFlags(t *testing.T) {
	cmd := NewCreateUserCommand()
	assert.Error(t, cmd.ParseFlags([]string{"-username", "desk"}))

	cmd = NewCreateUserCommand()
	require.NoError(t, cmd.ParseFlags([]string{
		"-username", "desk", "-email", "desk@example.com", "-password", "correct horse battery", "-role", "admin",
	}))
	assert.Equal(t, "desk", cmd.Username)
	assert.Equal(t, "admin", cmd.Role)
}

func TestCreateUserCommand_Run(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")
	var out bytes.Buffer

	cmd := &CreateUserCommand{
		Username:     "desk",
		Email:        "desk@example.com",
		Password:     "correct horse battery",
		Role:         "admin",
		DatabasePath: dbPath,
		Out:          &out,
	}
	require.NoError(t, cmd.Run(testConfig()))
	assert.Contains(t, out.String(), `Created admin "desk"`)

	assert.Error(t, cmd.Run(testConfig()), "usernames are unique")

	cmd.Username, cmd.Email, cmd.Password = "short", "short@example.com", "tiny"
	assert.Error(t, cmd.Run(testConfig()))
}

func TestOverdueReportCommand_ParseFlags(t *testing.T) {
	cmd := NewOverdueReportCommand()
	require.NoError(t, cmd.ParseFlags([]string{"-as-of", "2024-04-14", "-json"}))
	assert.Equal(t, time.Date(2024, 4, 14, 0, 0, 0, 0, time.UTC), cmd.AsOf)
	assert.True(t, cmd.JSON)

	cmd = NewOverdueReportCommand()
	assert.Error(t, cmd.ParseFlags([]string{"-as-of", "yesterday"}))
}

func seedOverdueLoan(t *testing.T, dbPath string) {
	t.Helper()
	db, err := database.NewSQLiteDatabase(dbPath)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	refs := catalog.NewRepository(db.DB)
	author, err := refs.CreateAuthor(ctx, "Frank Herbert")
	require.NoError(t, err)
	publisher, err := refs.CreatePublisher(ctx, "Chilton")
	require.NoError(t, err)
	category, err := refs.CreateCategory(ctx, "Desert Planets")
	require.NoError(t, err)

	book, err := books.NewRepository(db.DB).CreateBook(ctx, books.BookInput{
		Title: "Dune", ISBN: "9780441013593", Stock: 1,
		AuthorID: author.ID, PublisherID: publisher.ID, CategoryIDs: []uint{category.ID},
	})
	require.NoError(t, err)

	user := entities.User{Username: "reader", Email: "reader@example.com", Role: entities.UserRoleMember}
	require.NoError(t, db.DB.Create(&user).Error)

	borrowedAt := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger := loans.NewLedger(db.DB, loans.WithClock(func() time.Time { return borrowedAt }))
	_, err = ledger.Borrow(ctx, book.ID, user.ID, nil)
	require.NoError(t, err)
}

func TestOverdueReportCommand_Run(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")
	seedOverdueLoan(t, dbPath)

	var out bytes.Buffer
	cmd := &OverdueReportCommand{
		AsOf:         time.Date(2024, 4, 14, 0, 0, 0, 0, time.UTC),
		DatabasePath: dbPath,
		JSON:         true,
		Out:          &out,
	}
	require.NoError(t, cmd.Run(testConfig()))

	var lines []OverdueLine
	require.NoError(t, json.Unmarshal(out.Bytes(), &lines))
	require.Len(t, lines, 1)
	assert.Equal(t, "Dune", lines[0].Title)
	assert.Equal(t, 3, lines[0].DaysLate)
	assert.Equal(t, "1.50", lines[0].ProvisionalFine.StringFixed(2))
	assert.Equal(t, "USD", lines[0].Currency)

	out.Reset()
	cmd.JSON = false
	require.NoError(t, cmd.Run(testConfig()))
	assert.Contains(t, out.String(), "Dune")
	assert.Contains(t, out.String(), "1 loan(s), 1.50 USD accrued")

	out.Reset()
	cmd.AsOf = time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	require.NoError(t, cmd.Run(testConfig()))
	assert.Contains(t, out.String(), "None.")
}
