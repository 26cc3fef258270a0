package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAuthTestConfig(t *testing.T) {
	t.Helper()
	viper.Set("jwt.secret_key", "test-secret-key")
	viper.Set("jwt.expiry_hours", 1)
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
}

func TestPasswordHashing(t *testing.T) {
	setAuthTestConfig(t)

	t.Run("round trip", func(t *testing.T) {
		hashed, err := HashPassword("password123")
		require.NoError(t, err)

		assert.Len(t, strings.Split(hashed, "$"), 2)
		assert.True(t, VerifyPassword("password123", hashed))
		assert.False(t, VerifyPassword("password124", hashed))
	})

	t.Run("same password hashes differently per salt", func(t *testing.T) {
		first, err := HashPassword("password123")
		require.NoError(t, err)
		second, err := HashPassword("password123")
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})

	t.Run("malformed stored hash never verifies", func(t *testing.T) {
		assert.False(t, VerifyPassword("password123", "not-a-hash"))
		assert.False(t, VerifyPassword("password123", "!!$!!"))
	})
}

func newAuthTestService(t *testing.T) (*AuthService, sqlmock.Sqlmock) {
	t.Helper()
	setAuthTestConfig(t)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewAuthService(db, nil), mock
}

func TestAuthService_Register(t *testing.T) {
	t.Run("customer registration creates a credit account", func(t *testing.T) {
		service, mock := newAuthTestService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("ravi", "ravi@example.com", sqlmock.AnyArg(), "customer", "Ravi Iyer", "+919812345678").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(3, time.Now()))
		mock.ExpectExec("INSERT INTO customers").
			WithArgs(3).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body := `{"username":"ravi","email":"Ravi@Example.com","password":"password123","role":"customer","full_name":"Ravi Iyer","phone":"+919812345678"}`
		r := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		service.Register(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		var resp AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, 3, resp.User.ID)
		assert.Equal(t, "ravi@example.com", resp.User.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("shopkeeper registration skips the credit account", func(t *testing.T) {
		service, mock := newAuthTestService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(4, time.Now()))
		mock.ExpectCommit()

		body := `{"username":"lena","email":"lena@example.com","password":"password123","role":"shopkeeper"}`
		r := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate username", func(t *testing.T) {
		service, mock := newAuthTestService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WillReturnError(&duplicateKeyError{})
		mock.ExpectRollback()

		body := `{"username":"ravi","email":"ravi@example.com","password":"password123","role":"customer"}`
		r := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown role fails validation", func(t *testing.T) {
		service, _ := newAuthTestService(t)

		body := `{"username":"ravi","email":"ravi@example.com","password":"password123","role":"superuser"}`
		r := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown field is rejected", func(t *testing.T) {
		service, _ := newAuthTestService(t)

		body := `{"username":"ravi","email":"ravi@example.com","password":"password123","role":"customer","is_admin":true}`
		r := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

type duplicateKeyError struct{}

func (*duplicateKeyError) Error() string {
	return `pq: duplicate key value violates unique constraint "users_username_key"`
}

func TestAuthService_Login(t *testing.T) {
	userColumns := []string{"id", "username", "email", "password", "role", "full_name", "phone", "created_at"}

	t.Run("valid credentials", func(t *testing.T) {
		service, mock := newAuthTestService(t)

		hashed, err := HashPassword("password123")
		require.NoError(t, err)

		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs("ravi").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(3, "ravi", "ravi@example.com", hashed, "customer", "Ravi Iyer", nil, time.Now()))

		body := `{"username":"ravi","password":"password123"}`
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		service.Login(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		var resp AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "ravi", resp.User.Username)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password", func(t *testing.T) {
		service, mock := newAuthTestService(t)

		hashed, err := HashPassword("password123")
		require.NoError(t, err)

		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs("ravi").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(3, "ravi", "ravi@example.com", hashed, "customer", nil, nil, time.Now()))

		body := `{"username":"ravi","password":"password124"}`
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		service, mock := newAuthTestService(t)

		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows(userColumns))

		body := `{"username":"ghost","password":"password123"}`
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthService_Logout(t *testing.T) {
	t.Run("blacklists the token until expiry", func(t *testing.T) {
		setAuthTestConfig(t)

		db, _, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		redisClient, redisMock := redismock.NewClientMock()
		service := NewAuthService(db, redisClient)

		redisMock.ExpectSet("blacklist:some-token", "1", time.Hour).SetVal("OK")

		r := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
		r.Header.Set("Authorization", "Bearer some-token")
		w := httptest.NewRecorder()

		service.Logout(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}
