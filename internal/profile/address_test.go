package profile

import (
	"testing"
	"tigertrust/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNamespace = domain.Pubkey{0x0f, 0x1e, 0x2d, 31: 0x3c}

func TestFindAddressIsDeterministic(t *testing.T) {
	d := NewDeriver(testNamespace)
	owner := domain.Pubkey{1, 2, 3}

	addr1, proof1, err := d.FindAddress(ProfileLabel, owner)
	require.NoError(t, err)
	addr2, proof2, err := d.FindAddress(ProfileLabel, owner)
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2)
	assert.Equal(t, proof1, proof2)
	assert.False(t, IsOnCurve(addr1))
}

func TestFindAddressReturnsHighestValidProof(t *testing.T) {
	d := NewDeriver(testNamespace)
	owner := domain.Pubkey{9, 9, 9}

	_, proof, err := d.FindAddress(ProfileLabel, owner)
	require.NoError(t, err)

	for p := 255; p > int(proof); p-- {
		_, err := d.CreateAddress(ProfileLabel, owner, uint8(p))
		assert.ErrorIs(t, err, errOnCurve, "proof %d should have been rejected", p)
	}
}

func TestDistinctOwnersGetDistinctAddresses(t *testing.T) {
	d := NewDeriver(testNamespace)
	seen := make(map[domain.Address]domain.Pubkey)

	for i := 0; i < 64; i++ {
		owner := domain.Pubkey{byte(i), byte(i >> 8), 31: 0x7f}
		addr, _, err := d.FindAddress(ProfileLabel, owner)
		require.NoError(t, err)
		prev, dup := seen[addr]
		require.False(t, dup, "owners %s and %s collided", prev, owner)
		seen[addr] = owner
	}
}

func TestAddressDependsOnNamespaceAndLabel(t *testing.T) {
	owner := domain.Pubkey{4, 5, 6}

	a, _, err := NewDeriver(testNamespace).FindAddress(ProfileLabel, owner)
	require.NoError(t, err)
	b, _, err := NewDeriver(domain.Pubkey{0xee}).FindAddress(ProfileLabel, owner)
	require.NoError(t, err)
	c, _, err := NewDeriver(testNamespace).FindAddress("counter", owner)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestVerify(t *testing.T) {
	d := NewDeriver(testNamespace)
	owner := domain.Pubkey{7}
	other := domain.Pubkey{8}

	addr, proof, err := d.FindAddress(ProfileLabel, owner)
	require.NoError(t, err)

	assert.NoError(t, d.Verify(ProfileLabel, owner, addr, proof))
	assert.ErrorIs(t, d.Verify(ProfileLabel, other, addr, proof), ErrAddressMismatch)
	assert.ErrorIs(t, d.Verify(ProfileLabel, owner, addr, proof-1), ErrAddressMismatch)
	assert.ErrorIs(t, d.Verify(ProfileLabel, owner, domain.Address{1}, proof), ErrAddressMismatch)
}

func TestCreateAddressRejectsLongLabel(t *testing.T) {
	_, err := NewDeriver(testNamespace).CreateAddress("a label that is longer than thirty-two bytes", domain.Pubkey{}, 255)
	assert.Error(t, err)
}
