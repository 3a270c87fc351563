package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"github.com/agentstation/retailchain/pkg/errors"
)

func TestOpenRejectsMalformedURL(t *testing.T) {
	_, err := Open(context.Background(), "postgres://%zz")
	assert.Error(t, err)

	var cfgErr *errors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestClassify(t *testing.T) {
	assert.True(t, errors.IsNotFound(classify("get", 3, pgx.ErrNoRows)))
	assert.True(t, errors.IsStorage(classify("get", 3, assert.AnError)))
}
