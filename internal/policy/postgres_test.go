package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreGrants(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"role", "action", "subject"}).
		AddRow("administrator", "manage", "charges").
		AddRow("resident", "read", "charges")
	mock.ExpectQuery("select role, action, subject from policy_grants").WillReturnRows(rows)

	grants, err := NewPGStore(db).Grants(context.Background())
	if err != nil {
		t.Fatalf("Grants: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("got %d grants, want 2", len(grants))
	}
	if grants[1] != (Grant{Role: "resident", Action: "read", Subject: "charges"}) {
		t.Fatalf("unexpected grant: %+v", grants[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreGrantsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select role, action, subject from policy_grants").
		WillReturnError(errors.New("connection reset"))

	if _, err := NewPGStore(db).Grants(context.Background()); err == nil {
		t.Fatal("expected query error to surface")
	}
}

func TestPGStoreEnsureInsertsNormalized(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("insert into policy_grants").
		WithArgs("resident", "read", "charges").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPGStore(db)
	err = store.Ensure(context.Background(), []Grant{
		{Role: " Resident ", Action: "READ", Subject: "Charges"},
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreEnsureRejectsInvalidGrant(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	store := NewPGStore(db)
	err = store.Ensure(context.Background(), []Grant{{Role: "resident", Action: "", Subject: "charges"}})
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("err = %v, want ErrInvalidGrant", err)
	}
}
