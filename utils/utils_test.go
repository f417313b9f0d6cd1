package utils

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	token, err := GenerateJWT("secret", 7, "ana@facc.org", "tecnico", time.Now().Add(time.Hour))
	require.NoError(t, err)

	claims, err := ValidateJWT("secret", token)
	require.NoError(t, err)
	assert.EqualValues(t, 7, claims.UserID)
	assert.Equal(t, "ana@facc.org", claims.Email)
	assert.Equal(t, "tecnico", claims.Role)
}

func TestJWT_Rejects(t *testing.T) {
	token, err := GenerateJWT("secret", 7, "ana@facc.org", "tecnico", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = ValidateJWT("other", token)
	assert.Error(t, err)

	expired, err := GenerateJWT("secret", 7, "ana@facc.org", "tecnico", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = ValidateJWT("secret", expired)
	assert.Error(t, err)

	_, err = ValidateJWT("secret", "not-a-token")
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("clave123")
	require.NoError(t, err)
	assert.NotEqual(t, "clave123", hash)
	assert.True(t, CheckPasswordHash("clave123", hash))
	assert.False(t, CheckPasswordHash("clave124", hash))
	assert.False(t, CheckPasswordHash("clave123", "plaintext"))
}

func TestAppError(t *testing.T) {
	cause := errors.New("disk full")
	err := Internal("Error al guardar", cause)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.ErrorIs(t, err, cause)

	bad := BadRequest("Error al importar", "Fila 1: falta", "Fila 2: falta")
	assert.Equal(t, http.StatusBadRequest, bad.Status)
	assert.Len(t, bad.Details, 2)
	assert.Equal(t, "Error al importar", bad.Error())
}
