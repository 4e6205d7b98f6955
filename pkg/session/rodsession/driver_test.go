package rodsession

import (
	"context"
	"errors"
	"testing"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xmediagrab/pkg/session"
	"xmediagrab/pkg/session/sessiontest"
)

func TestStaleMapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		stale bool
	}{
		{"nil", nil, false},
		{"object gone", &rod.ObjectNotFoundError{}, true},
		{"invisible", &rod.InvisibleShapeError{}, true},
		{"cdp node gone", &cdp.Error{Code: -32000, Message: "No node with given id found"}, true},
		{"cdp object gone", &cdp.Error{Code: -32000, Message: "Could not find object with given id", Data: "x"}, true},
		{"cdp other", &cdp.Error{Code: -32601, Message: "method not found"}, false},
		{"plain", errors.New("timeout"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := stale(tt.err)
			assert.Equal(t, tt.stale, session.IsStale(err))
			if tt.err == nil {
				assert.NoError(t, err)
			}
		})
	}
}

func TestForeignElement(t *testing.T) {
	d := &Driver{}
	err := d.Click(context.Background(), session.NewMockDriver().Node("div", nil))
	assert.Error(t, err)
}

func TestDriverConformance(t *testing.T) {
	sessiontest.SkipUnlessEnabled(t)
	srv := sessiontest.Server(t)

	drv, err := New(context.Background(), session.Options{Headless: true, NoSandbox: true})
	require.NoError(t, err)
	defer drv.Close()

	sessiontest.Run(t, drv, srv)
}
