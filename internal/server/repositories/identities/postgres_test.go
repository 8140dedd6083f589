package identities

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/accountsync/internal/common"
	"github.com/dmitrijs2005/accountsync/internal/identity"
	"github.com/jackc/pgx/v5/pgconn"
)

var columns = []string{"id", "email", "username", "phone", "first_name", "last_name",
	"credential_kind", "credential_value", "auth_method", "linked_auth_methods", "profile", "updated_at"}

var stamp = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func aliceRow() *sqlmock.Rows {
	return sqlmock.NewRows(columns).AddRow(
		"id-1", "alice@example.org", "alice", "+15550001", "Alice", "Liddell",
		"inline", "$argon2id$x", "password", "password,google", []byte(`{"city":"Riga"}`), stamp)
}

func TestFindByCredential_Found(t *testing.T) {
	tests := []struct {
		method identity.LoginMethod
		where  string
	}{
		{identity.LoginEmail, `lower\(email\)\s*=\s*lower\(\$1\)`},
		{identity.LoginUsername, `lower\(username\)\s*=\s*lower\(\$1\)`},
		{identity.LoginPhone, `phone\s*=\s*\$1`},
	}
	for _, tt := range tests {
		t.Run(tt.method.String(), func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+identities\s+WHERE\s+` + tt.where + `\s+LIMIT\s+1$`).
				WithArgs("v").
				WillReturnRows(aliceRow())

			got, err := repo.FindByCredential(context.Background(), tt.method, "v")
			if err != nil {
				t.Fatalf("FindByCredential error: %v", err)
			}
			if got.ID != "id-1" || got.Credential.Kind != identity.CredentialInlineHash {
				t.Fatalf("unexpected record: %+v", got)
			}
			if len(got.LinkedAuthMethods) != 2 || got.Profile["city"] != "Riga" || !got.UpdatedAt.Equal(stamp) {
				t.Fatalf("unexpected decoded fields: %+v", got)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestFindByCredential_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+identities`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByCredential(context.Background(), identity.LoginUsername, "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestFindByCredential_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+identities`).
		WithArgs("alice").
		WillReturnError(errors.New("db down"))

	_, err := repo.FindByCredential(context.Background(), identity.LoginUsername, "alice")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT.*FROM\s+identities\s+WHERE\s+id\s*=\s*\$1$`
	mock.ExpectQuery(q).WithArgs("id-1").WillReturnRows(aliceRow())
	mock.ExpectQuery(q).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	got, err := repo.GetByID(context.Background(), "id-1")
	if err != nil || got.Email != "alice@example.org" {
		t.Fatalf("GetByID: %+v, %v", got, err)
	}
	if _, err := repo.GetByID(context.Background(), "nope"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByID_BadEnum(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(columns).AddRow(
		"id-1", "", "alice", "", "", "", "rot13", "", "password", "", []byte(`{}`), stamp)
	mock.ExpectQuery(`(?s)^SELECT`).WithArgs("id-1").WillReturnRows(rows)

	if _, err := repo.GetByID(context.Background(), "id-1"); err == nil {
		t.Fatal("expected decode error for unknown credential kind")
	}
}

const upsertQuery = `(?s)^INSERT\s+INTO\s+identities\s*\(id,.*\)\s*VALUES\s*\(\$1,.*\$11::jsonb,\s*\$12\)\s*ON\s+CONFLICT\s*\(id\)\s+DO\s+UPDATE\s+SET.*RETURNING\s+id,.*updated_at$`

func TestUpsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	in := &identity.Record{
		ID: "id-1", Email: "alice@example.org", Username: "alice", Phone: "+15550001",
		FirstName: "Alice", LastName: "Liddell",
		Credential:        identity.CredentialRef{Kind: identity.CredentialInlineHash, Value: "$argon2id$x"},
		AuthMethod:        identity.AuthPassword,
		LinkedAuthMethods: []identity.AuthMethod{identity.AuthPassword, identity.AuthGoogle},
		Profile:           map[string]string{"city": "Riga"},
		UpdatedAt:         stamp,
	}

	mock.ExpectQuery(upsertQuery).
		WithArgs("id-1", "alice@example.org", "alice", "+15550001", "Alice", "Liddell",
			"inline", "$argon2id$x", "password", "password,google", `{"city":"Riga"}`, stamp).
		WillReturnRows(aliceRow())

	got, err := repo.Upsert(context.Background(), in)
	if err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if got.ID != "id-1" || got.Profile["city"] != "Riga" {
		t.Fatalf("unexpected stored record: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpsert_NilProfileStoredAsEmptyObject(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(upsertQuery).
		WithArgs("id-1", "", "alice", "", "", "", "none", "", "password", "", `{}`, stamp).
		WillReturnRows(aliceRow())

	_, err := repo.Upsert(context.Background(), &identity.Record{ID: "id-1", Username: "alice", AuthMethod: identity.AuthPassword, UpdatedAt: stamp})
	if err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
}

func TestUpsert_UniqueViolation(t *testing.T) {
	tests := []struct {
		constraint string
		want       string
	}{
		{"identities_email_key", identity.FieldEmail},
		{"identities_username_key", identity.FieldUsername},
		{"identities_phone_key", identity.FieldPhone},
		{"identities_pkey", ""},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectQuery(upsertQuery).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tt.constraint})

			_, err := repo.Upsert(context.Background(), &identity.Record{ID: "id-2", Username: "alice", UpdatedAt: stamp})
			var ce *ConflictError
			if !errors.As(err, &ce) {
				t.Fatalf("want *ConflictError, got %v", err)
			}
			if ce.Field != tt.want {
				t.Fatalf("field: got %q want %q", ce.Field, tt.want)
			}
			if !errors.Is(err, common.ErrorAlreadyExists) {
				t.Fatalf("conflict should match common.ErrorAlreadyExists")
			}
		})
	}
}

func TestUpsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(upsertQuery).WillReturnError(&pgconn.PgError{Code: "57P01", Message: "admin shutdown"})

	_, err := repo.Upsert(context.Background(), &identity.Record{ID: "id-2", UpdatedAt: stamp})
	var ce *ConflictError
	if err == nil || errors.As(err, &ce) {
		t.Fatalf("expected plain db error, got %v", err)
	}
	if !regexp.MustCompile(`db error: `).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
