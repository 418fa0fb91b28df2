package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/shared/errors"
)

type stubProvider struct{ Provider }

func (s *stubProvider) FetchSubscription(ctx context.Context, id string) (*SubscriptionDetails, error) {
	return &SubscriptionDetails{ProviderSubscriptionID: id}, nil
}

func TestRegistry_GetCachesInstance(t *testing.T) {
	registry := NewRegistry()
	builds := 0
	registry.Register(vo.ProviderRazorpay, func() (Provider, error) {
		builds++
		return &stubProvider{}, nil
	})

	first, err := registry.Get(vo.ProviderRazorpay)
	require.NoError(t, err)
	second, err := registry.Get(vo.ProviderRazorpay)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, builds)
}

func TestRegistry_GetUnknownType(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Get(vo.ProviderGooglePlay)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestRegistry_BuilderFailureNotCached(t *testing.T) {
	registry := NewRegistry()
	builds := 0
	registry.Register(vo.ProviderAppStore, func() (Provider, error) {
		builds++
		if builds == 1 {
			return nil, errors.NewConfigurationError("app store key missing")
		}
		return &stubProvider{}, nil
	})

	_, err := registry.Get(vo.ProviderAppStore)
	require.Error(t, err)

	instance, err := registry.Get(vo.ProviderAppStore)
	require.NoError(t, err)
	assert.NotNil(t, instance)
	assert.Equal(t, 2, builds)
}

func TestRegistry_Clear(t *testing.T) {
	registry := NewRegistry()
	builds := 0
	registry.Register(vo.ProviderRazorpay, func() (Provider, error) {
		builds++
		return &stubProvider{}, nil
	})

	_, err := registry.Get(vo.ProviderRazorpay)
	require.NoError(t, err)
	registry.Clear()
	_, err = registry.Get(vo.ProviderRazorpay)
	require.NoError(t, err)

	assert.Equal(t, 2, builds)
}

func TestIsValidType(t *testing.T) {
	assert.True(t, IsValidType("razorpay"))
	assert.True(t, IsValidType("google_play"))
	assert.True(t, IsValidType("app_store"))
	assert.False(t, IsValidType("stripe"))
	assert.False(t, IsValidType(""))
}
