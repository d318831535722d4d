package types

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dominant-strategies/go-mempool/common"
)

func sampleData() *TxData {
	to := common.BytesToAddress([]byte{0x42})
	return &TxData{
		From:      common.BytesToAddress([]byte{0x01}),
		Nonce:     7,
		To:        &to,
		Value:     big.NewInt(1000),
		Payload:   []byte("payload"),
		Gas:       21000,
		GasFeeCap: big.NewInt(2_000_000_000),
		GasTipCap: big.NewInt(1_000_000),
	}
}

func TestHashIgnoresArrivalTime(t *testing.T) {
	first := NewTransaction(sampleData())
	time.Sleep(2 * time.Millisecond)
	second := NewTransaction(sampleData())

	assert.NotEqual(t, first.Time(), second.Time())
	assert.Equal(t, first.Hash(), second.Hash(), "identical fields must collide regardless of arrival time")
}

func TestHashCoversEveryField(t *testing.T) {
	base := NewTransaction(sampleData()).Hash()

	mutations := []func(*TxData){
		func(d *TxData) { d.From = common.BytesToAddress([]byte{0x02}) },
		func(d *TxData) { d.Nonce = 8 },
		func(d *TxData) { d.To = nil },
		func(d *TxData) { d.Value = big.NewInt(1001) },
		func(d *TxData) { d.Payload = []byte("payloae") },
		func(d *TxData) { d.Gas = 21001 },
		func(d *TxData) { d.GasFeeCap = big.NewInt(2_000_000_001) },
		func(d *TxData) { d.GasTipCap = big.NewInt(1_000_001) },
	}
	for i, mutate := range mutations {
		data := sampleData()
		mutate(data)
		assert.NotEqual(t, base, NewTransaction(data).Hash(), "mutation %d must change the hash", i)
	}
}

func TestCost(t *testing.T) {
	tx := NewTransaction(sampleData())
	want := new(big.Int).Add(big.NewInt(1000), new(big.Int).Mul(big.NewInt(21000), big.NewInt(2_000_000_000)))
	assert.Equal(t, want, tx.Cost())
}

func TestEffectiveGasTip(t *testing.T) {
	tx := NewTransaction(sampleData())

	// Plenty of headroom: the tip cap is binding
	assert.Equal(t, big.NewInt(1_000_000), tx.EffectiveGasTip(big.NewInt(1_000_000_000)))

	// Close to the fee cap: the remaining headroom is binding
	assert.Equal(t, big.NewInt(5), tx.EffectiveGasTip(big.NewInt(1_999_999_995)))

	// Above the fee cap: the tip goes negative
	assert.Equal(t, -1, tx.EffectiveGasTip(big.NewInt(3_000_000_000)).Sign())

	// No base fee means the raw tip cap
	assert.Equal(t, big.NewInt(1_000_000), tx.EffectiveGasTip(nil))
}

func TestImmutableAccessors(t *testing.T) {
	tx := NewTransaction(sampleData())

	tx.Value().SetInt64(0)
	assert.Equal(t, big.NewInt(1000), tx.Value(), "accessors must return copies")

	to := tx.To()
	to.SetBytes([]byte{0xff})
	assert.Equal(t, common.BytesToAddress([]byte{0x42}), *tx.To())
}
