package state

import (
	"bytes"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tranchefi/crypto"
	"tranchefi/native/credit"
	"tranchefi/native/fund"
	"tranchefi/storage"
)

func makeAddress(prefix crypto.AddressPrefix, b byte) crypto.Address {
	return crypto.NewAddress(prefix, bytes.Repeat([]byte{b}, crypto.AddressLength))
}

type failingDB struct {
	*storage.MemDB
}

func (failingDB) Write(*storage.Batch) error { return errors.New("disk full") }

func TestKVStagedUntilCommit(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	require.NoError(t, mgr.KVPut([]byte("k"), uint64(7)))
	var out uint64
	ok, err := mgr.KVGet([]byte("k"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), out)
	require.Empty(t, db.Keys(), "writes must stay staged before commit")

	require.NoError(t, mgr.Commit())
	require.Equal(t, 0, mgr.Pending())
	require.Len(t, db.Keys(), 1)

	fresh := NewManager(db)
	ok, err = fresh.KVGet([]byte("k"), &out)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestKVDiscard(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	require.NoError(t, mgr.KVPut([]byte("k"), uint64(1)))
	mgr.Discard()
	ok, err := mgr.KVGet([]byte("k"), nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mgr.Commit())
	require.Empty(t, db.Keys())
}

func TestKVDeleteHidesCommittedValue(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.NoError(t, mgr.KVPut([]byte("k"), uint64(1)))
	require.NoError(t, mgr.Commit())
	require.NoError(t, mgr.KVDelete([]byte("k")))
	ok, err := mgr.KVGet([]byte("k"), nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mgr.Commit())
	ok, err = mgr.KVGet([]byte("k"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCommitFailureKeepsWriteSet(t *testing.T) {
	mgr := NewManager(failingDB{storage.NewMemDB()})
	require.NoError(t, mgr.KVPut([]byte("k"), uint64(1)))
	require.Error(t, mgr.Commit())
	require.Equal(t, 1, mgr.Pending())
}

func TestKVRejectsEmptyKey(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.Error(t, mgr.KVPut(nil, uint64(1)))
	_, err := mgr.KVGet(nil, nil)
	require.Error(t, err)
	require.Error(t, mgr.KVDelete(nil))
}

func TestFundRecordsRoundTrip(t *testing.T) {
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)
	defer db.Close()
	mgr := NewManager(db)

	addrs, err := mgr.FundAddresses()
	require.NoError(t, err)
	require.Nil(t, addrs)

	want := &fund.Addresses{
		Router:         makeAddress(crypto.ContractPrefix, 1),
		Pool:           makeAddress(crypto.ContractPrefix, 2),
		PrincipalToken: makeAddress(crypto.ContractPrefix, 3),
		AltToken:       makeAddress(crypto.ContractPrefix, 4),
	}
	require.NoError(t, mgr.PutFundAddresses(want))

	st := fund.NewState()
	alice := makeAddress(crypto.AccountPrefix, 0xA1)
	bob := makeAddress(crypto.AccountPrefix, 0xB0)
	st.Shares[alice] = big.NewInt(1100)
	st.Shares[bob] = big.NewInt(0)
	st.TotalSenior = big.NewInt(902)
	st.TotalSubordinated = big.NewInt(165)
	st.TotalReserve = big.NewInt(33)
	require.NoError(t, mgr.PutFundState(st))
	require.NoError(t, mgr.Commit())

	reader := NewManager(db)
	gotAddrs, err := reader.FundAddresses()
	require.NoError(t, err)
	require.Equal(t, *want, *gotAddrs)

	got, err := reader.FundState()
	require.NoError(t, err)
	require.Equal(t, 0, got.TotalSenior.Cmp(big.NewInt(902)))
	require.Equal(t, 0, got.TotalSubordinated.Cmp(big.NewInt(165)))
	require.Equal(t, 0, got.TotalReserve.Cmp(big.NewInt(33)))
	require.Len(t, got.Shares, 2)
	require.Equal(t, 0, got.Share(alice).Cmp(big.NewInt(1100)))
	zero, ok := got.Shares[bob]
	require.True(t, ok, "redeemed investors keep a zero entry")
	require.Equal(t, 0, zero.Sign())
}

func TestCreditRecordsRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	carol := makeAddress(crypto.AccountPrefix, 0xC0)

	req, err := mgr.LoanRequest(carol)
	require.NoError(t, err)
	require.Nil(t, req)

	require.NoError(t, mgr.PutCreditAddresses(&credit.Addresses{
		Router:         makeAddress(crypto.ContractPrefix, 1),
		Pool:           makeAddress(crypto.ContractPrefix, 2),
		PrincipalToken: makeAddress(crypto.ContractPrefix, 3),
	}))
	require.NoError(t, mgr.PutLoanRequest(&credit.LoanRequest{
		Borrower:       carol,
		Amount:         big.NewInt(10000),
		InterestRate:   big.NewInt(5),
		OriginationFee: big.NewInt(2),
		Approved:       true,
	}))
	require.NoError(t, mgr.PutLoan(&credit.Loan{
		Borrower:          carol,
		Principal:         big.NewInt(9180),
		InterestRate:      big.NewInt(5),
		TotalInterestPaid: big.NewInt(400),
		PaidPrincipal:     big.NewInt(1180),
		TermInMonths:      12,
		StartTimestamp:    1_700_000_000,
	}))
	require.NoError(t, mgr.Commit())

	reader := NewManager(db)
	addrs, err := reader.CreditAddresses()
	require.NoError(t, err)
	require.Equal(t, makeAddress(crypto.ContractPrefix, 2), addrs.Pool)

	req, err = reader.LoanRequest(carol)
	require.NoError(t, err)
	require.True(t, req.Approved)
	require.Equal(t, 0, req.Amount.Cmp(big.NewInt(10000)))

	loan, err := reader.Loan(carol)
	require.NoError(t, err)
	require.Equal(t, 0, loan.Principal.Cmp(big.NewInt(9180)))
	require.Equal(t, 0, loan.PaidPrincipal.Cmp(big.NewInt(1180)))
	require.Equal(t, uint32(12), loan.TermInMonths)
	require.Equal(t, uint64(1_700_000_000), loan.StartTimestamp)

	require.NoError(t, reader.DeleteLoan(carol))
	require.NoError(t, reader.Commit())
	loan, err = NewManager(db).Loan(carol)
	require.NoError(t, err)
	require.Nil(t, loan)
}

func TestLoanKeysAreDistinct(t *testing.T) {
	carol := makeAddress(crypto.AccountPrefix, 0xC0)
	require.NotEqual(t, LoanKey(carol), LoanRequestKey(carol))
	require.Equal(t, "fund/state", string(FundStateKey()))
}
