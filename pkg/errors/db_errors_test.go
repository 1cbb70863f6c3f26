package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyDBError_GORMRecordNotFound(t *testing.T) {
	err := gorm.ErrRecordNotFound
	dbErr := ClassifyDBError(err)

	assert.NotNil(t, dbErr)
	assert.Equal(t, ErrorTypeNotFound, dbErr.Type)
	assert.Equal(t, "record not found", dbErr.Message)
	assert.True(t, errors.Is(dbErr.OriginalErr, gorm.ErrRecordNotFound))
}

func TestClassifyDBError_MySQLDuplicateKey(t *testing.T) {
	mysqlErr := &mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry 'alert-42' for key 'alert_id'",
	}

	dbErr := ClassifyDBError(mysqlErr)

	assert.NotNil(t, dbErr)
	assert.Equal(t, ErrorTypeDuplicateKey, dbErr.Type)
	assert.Equal(t, uint16(1062), dbErr.MySQLErrCode)
	assert.Contains(t, dbErr.Error(), "MySQL error 1062")
}

func TestClassifyDBError_MySQLCodes(t *testing.T) {
	tests := []struct {
		name     string
		errCode  uint16
		expected DatabaseErrorType
	}{
		{name: "data too long (1406)", errCode: 1406, expected: ErrorTypeDataTooLong},
		{name: "deadlock (1213)", errCode: 1213, expected: ErrorTypeDeadlock},
		{name: "unknown code (9999)", errCode: 9999, expected: ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbErr := ClassifyDBError(&mysql.MySQLError{Number: tt.errCode})
			assert.Equal(t, tt.expected, dbErr.Type)
			assert.Equal(t, tt.errCode, dbErr.MySQLErrCode)
		})
	}
}

func TestClassifyDBError_ConnectionErrors(t *testing.T) {
	for _, msg := range []string{
		"dial tcp 127.0.0.1:3306: connection refused",
		"driver: bad connection",
		"write: broken pipe",
	} {
		dbErr := ClassifyDBError(errors.New(msg))
		assert.Equal(t, ErrorTypeConnectionError, dbErr.Type, msg)
	}
}

func TestClassifyDBError_WrappedError(t *testing.T) {
	inner := &mysql.MySQLError{Number: 1213}
	wrapped := fmt.Errorf("append alert: %w", inner)

	dbErr := ClassifyDBError(wrapped)
	assert.Equal(t, ErrorTypeDeadlock, dbErr.Type)
}

func TestClassifyDBError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyDBError(nil))
}

func TestClassifyDBError_Unknown(t *testing.T) {
	dbErr := ClassifyDBError(errors.New("something else entirely"))
	assert.Equal(t, ErrorTypeUnknown, dbErr.Type)
}
