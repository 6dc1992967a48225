package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setAuthTestConfig(t *testing.T) {
	t.Helper()
	viper.Set("jwt.secret_key", "test-secret-key")
	viper.Set("jwt.expiry_hours", 1)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 8*1024)
	viper.Set("argon2.threads", 1)
	viper.Set("argon2.key_length", 32)
	viper.Set("argon2.salt_length", 16)
}

func TestPasswordHashing(t *testing.T) {
	setAuthTestConfig(t)

	t.Run("hash and verify round trip", func(t *testing.T) {
		hashed, err := hashPassword("password123")
		assert.NoError(t, err)
		assert.NotEqual(t, "password123", hashed)
		assert.True(t, verifyPassword("password123", hashed))
	})

	t.Run("wrong password does not verify", func(t *testing.T) {
		hashed, err := hashPassword("password123")
		assert.NoError(t, err)
		assert.False(t, verifyPassword("different", hashed))
	})

	t.Run("same password hashes differently per salt", func(t *testing.T) {
		first, err := hashPassword("password123")
		assert.NoError(t, err)
		second, err := hashPassword("password123")
		assert.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("malformed stored hash does not verify", func(t *testing.T) {
		assert.False(t, verifyPassword("password123", "not-a-valid-hash"))
	})
}

func TestGenerateJWT(t *testing.T) {
	setAuthTestConfig(t)

	user := AuthUser{ID: 7, Name: "Jane Doe", Email: "jane@example.com", AccountNumber: "9678758461"}
	tokenString, err := generateJWT(user)
	assert.NoError(t, err)

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret-key"), nil
	})
	assert.NoError(t, err)
	assert.True(t, token.Valid)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, float64(7), claims["id"])
	assert.Equal(t, "jane@example.com", claims["email"])
	assert.Equal(t, "9678758461", claims["accountNumber"])
	assert.NotEmpty(t, claims["jti"])
}

func newAuthTestService(t *testing.T, db *sql.DB) *AuthService {
	t.Helper()
	return NewAuthService(db, nil, NewKarmaService(nil))
}

func TestAuthService_Register(t *testing.T) {
	setAuthTestConfig(t)

	t.Run("successful registration creates user and wallet", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		karmaUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer karmaUpstream.Close()
		viper.Set("karma.base_url", karmaUpstream.URL)

		service := newAuthTestService(t, db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND deleted = FALSE)`)).
			WithArgs("jane@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (name, email, password) VALUES ($1, $2, $3) RETURNING id`)).
			WithArgs("Jane Doe", "jane@example.com", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM wallets WHERE "accountNumber" = \$1\)`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO wallets (balance, loan, "userId", "accountNumber") VALUES (0, 0, $1, $2)`)).
			WithArgs(int64(7), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body := `{"name": "Jane Doe", "email": "Jane@Example.com", "password": "password123"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		service.Register(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var resp AuthResponse
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, int64(7), resp.User.ID)
		assert.Equal(t, "jane@example.com", resp.User.Email)
		assert.Len(t, resp.User.AccountNumber, 10)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newAuthTestService(t, db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND deleted = FALSE)`)).
			WithArgs("jane@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		body := `{"name": "Jane Doe", "email": "jane@example.com", "password": "password123"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		service.Register(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("blacklisted identity is forbidden", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		karmaUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"status":  "success",
				"message": "Successful",
				"data":    map[string]string{"karma_identity": "jane@example.com"},
			})
		}))
		defer karmaUpstream.Close()
		viper.Set("karma.base_url", karmaUpstream.URL)

		service := newAuthTestService(t, db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND deleted = FALSE)`)).
			WithArgs("jane@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		body := `{"name": "Jane Doe", "email": "jane@example.com", "password": "password123"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		service.Register(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid payload fails validation", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newAuthTestService(t, db)

		body := `{"name": "J", "email": "not-an-email", "password": "short"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		service.Register(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	setAuthTestConfig(t)

	loginQuery := `SELECT u.id, u.name, u.email, u.password, w."accountNumber"
		 FROM users u
		 JOIN wallets w ON w."userId" = u.id AND w.deleted = FALSE
		 WHERE u.email = $1 AND u.deleted = FALSE`

	t.Run("successful login", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newAuthTestService(t, db)

		hashed, err := hashPassword("password123")
		assert.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta(loginQuery)).
			WithArgs("jane@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password", "accountNumber"}).
				AddRow(7, "Jane Doe", "jane@example.com", hashed, "9678758461"))

		body := `{"email": "jane@example.com", "password": "password123"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		service.Login(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp AuthResponse
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "9678758461", resp.User.AccountNumber)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newAuthTestService(t, db)

		hashed, err := hashPassword("password123")
		assert.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta(loginQuery)).
			WithArgs("jane@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password", "accountNumber"}).
				AddRow(7, "Jane Doe", "jane@example.com", hashed, "9678758461"))

		body := `{"email": "jane@example.com", "password": "wrong"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		service.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown email", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newAuthTestService(t, db)

		mock.ExpectQuery(regexp.QuoteMeta(loginQuery)).
			WithArgs("missing@example.com").
			WillReturnError(sql.ErrNoRows)

		body := `{"email": "missing@example.com", "password": "password123"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		service.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuthService_Logout(t *testing.T) {
	setAuthTestConfig(t)

	t.Run("blacklists the presented token", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewAuthService(db, redisClient, NewKarmaService(redisClient))

		token := "some.jwt.token"
		redisMock.ExpectSet(fmt.Sprintf("blacklist:%s", token), "1", time.Hour).SetVal("OK")

		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		service.Logout(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("logout without a token still succeeds", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newAuthTestService(t, db)

		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		w := httptest.NewRecorder()
		service.Logout(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
