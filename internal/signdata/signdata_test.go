package signdata

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	toncell "github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/oktsec/signdata/internal/address"
	"github.com/oktsec/signdata/internal/cell"
	"github.com/oktsec/signdata/internal/dnsname"
	"github.com/oktsec/signdata/internal/payload"
)

const (
	testAddr   = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"
	otherAddr  = "0:0000000000000000000000000000000000000000000000000000000000000001"
	testDomain = "tonkeeper.com"
	testTime   = int64(1717000000)
	testSchema = "transfer#_ amount:uint64 = Transfer;"
)

func testKey(seed byte) (ed25519.PublicKey, ed25519.PrivateKey) {
	priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
	return priv.Public().(ed25519.PublicKey), priv
}

func testCell(v uint64) string {
	c := toncell.BeginCell().MustStoreUInt(v, 64).EndCell()
	return base64.StdEncoding.EncodeToString(c.ToBOC())
}

func fixedService(ts int64) *Service {
	return New(WithClock(FixedClock(ts)))
}

func testPayloads() map[string]payload.Payload {
	return map[string]payload.Payload{
		"text":   payload.Text{Text: "Confirm new 2fa number: +1 234 567 8901"},
		"binary": payload.Binary{Bytes: []byte{0x00, 0x01, 0xfe, 0xff}},
		"cell":   payload.Cell{Schema: testSchema, Cell: testCell(1000)},
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	pub, priv := testKey(1)
	svc := fixedService(testTime)

	for name, p := range testPayloads() {
		t.Run(name, func(t *testing.T) {
			res, err := svc.Sign(Request{Payload: p, Domain: testDomain, SecretKey: priv, Address: testAddr})
			require.NoError(t, err)

			assert.Equal(t, testAddr, res.Address)
			assert.Equal(t, testDomain, res.Domain)
			assert.Equal(t, testTime, res.Timestamp)
			assert.Equal(t, p, res.Payload)

			sig, err := base64.StdEncoding.DecodeString(res.Signature)
			require.NoError(t, err)
			assert.Len(t, sig, ed25519.SignatureSize)

			assert.True(t, svc.VerifySignData(res, pub))
		})
	}
}

func TestSign_SeedKey(t *testing.T) {
	pub, priv := testKey(2)
	svc := fixedService(testTime)

	res, err := svc.Sign(Request{Payload: payload.Text{Text: "x"}, Domain: testDomain, SecretKey: priv.Seed(), Address: testAddr})
	require.NoError(t, err)
	assert.True(t, svc.VerifySignData(res, pub))
}

func TestSign_KeepsInputsVerbatim(t *testing.T) {
	_, priv := testKey(1)
	svc := fixedService(testTime)

	acct, err := address.Parse(testAddr)
	require.NoError(t, err)
	friendly := address.Friendly(acct, true, false)

	res, err := svc.Sign(Request{Payload: payload.Text{Text: "x"}, Domain: "TonKeeper.COM.", SecretKey: priv, Address: friendly})
	require.NoError(t, err)
	assert.Equal(t, "TonKeeper.COM.", res.Domain)
	assert.Equal(t, friendly, res.Address)
}

func TestVerify_EquivalentSpellings(t *testing.T) {
	pub, priv := testKey(1)
	svc := fixedService(testTime)

	res, err := svc.Sign(Request{Payload: payload.Text{Text: "x"}, Domain: testDomain, SecretKey: priv, Address: testAddr})
	require.NoError(t, err)

	acct, err := address.Parse(testAddr)
	require.NoError(t, err)

	// Same account and same canonical domain, different spelling.
	alt := *res
	alt.Address = address.Friendly(acct, false, false)
	alt.Domain = "TONKEEPER.com."
	assert.True(t, svc.VerifySignData(&alt, pub))
}

func TestVerify_Tamper(t *testing.T) {
	pub, priv := testKey(3)
	svc := fixedService(testTime)

	for name, p := range testPayloads() {
		res, err := svc.Sign(Request{Payload: p, Domain: testDomain, SecretKey: priv, Address: testAddr})
		require.NoError(t, err)
		require.True(t, svc.VerifySignData(res, pub))

		mutations := map[string]func(r *Result){
			"address":   func(r *Result) { r.Address = otherAddr },
			"domain":    func(r *Result) { r.Domain = "tonkeeper.org" },
			"subdomain": func(r *Result) { r.Domain = "app.tonkeeper.com" },
			"timestamp": func(r *Result) { r.Timestamp++ },
			"signature": func(r *Result) {
				sig, _ := base64.StdEncoding.DecodeString(r.Signature)
				sig[0] ^= 0x01
				r.Signature = base64.StdEncoding.EncodeToString(sig)
			},
			"payload text": func(r *Result) { r.Payload = payload.Text{Text: "something else"} },
			"payload kind": func(r *Result) {
				switch v := r.Payload.(type) {
				case payload.Text:
					r.Payload = payload.Binary{Bytes: []byte(v.Text)}
				case payload.Binary:
					r.Payload = payload.Text{Text: string(v.Bytes)}
				case payload.Cell:
					r.Payload = payload.Text{Text: v.Cell}
				}
			},
		}
		for mname, mutate := range mutations {
			t.Run(name+"/"+mname, func(t *testing.T) {
				m := *res
				mutate(&m)
				assert.False(t, svc.VerifySignData(&m, pub))
			})
		}
	}
}

func TestVerify_PublicKeyBitFlips(t *testing.T) {
	pub, priv := testKey(4)
	svc := fixedService(testTime)

	res, err := svc.Sign(Request{Payload: payload.Text{Text: "hello"}, Domain: testDomain, SecretKey: priv, Address: testAddr})
	require.NoError(t, err)

	for i := 0; i < len(pub)*8; i++ {
		flipped := bytes.Clone(pub)
		flipped[i/8] ^= 1 << (i % 8)
		assert.False(t, svc.VerifySignData(res, flipped), "bit %d", i)
	}
}

func TestVerify_WrongKey(t *testing.T) {
	_, priv := testKey(5)
	otherPub, _ := testKey(6)
	svc := fixedService(testTime)

	res, err := svc.Sign(Request{Payload: payload.Text{Text: "hello"}, Domain: testDomain, SecretKey: priv, Address: testAddr})
	require.NoError(t, err)
	assert.False(t, svc.VerifySignData(res, otherPub))
}

func TestVerify_CellMutations(t *testing.T) {
	pub, priv := testKey(7)
	svc := fixedService(testTime)

	res, err := svc.Sign(Request{Payload: payload.Cell{Schema: testSchema, Cell: testCell(1)}, Domain: testDomain, SecretKey: priv, Address: testAddr})
	require.NoError(t, err)

	otherSchema := *res
	otherSchema.Payload = payload.Cell{Schema: testSchema + "\n", Cell: testCell(1)}
	assert.False(t, svc.VerifySignData(&otherSchema, pub))

	otherCell := *res
	otherCell.Payload = payload.Cell{Schema: testSchema, Cell: testCell(2)}
	assert.False(t, svc.VerifySignData(&otherCell, pub))
}

func TestVerify_MalformedIsFalse(t *testing.T) {
	pub, priv := testKey(8)
	svc := fixedService(testTime)

	res, err := svc.Sign(Request{Payload: payload.Text{Text: "x"}, Domain: testDomain, SecretKey: priv, Address: testAddr})
	require.NoError(t, err)

	cases := map[string]func(r *Result){
		"bad address":        func(r *Result) { r.Address = "not an address" },
		"padded address":     func(r *Result) { r.Address = " " + r.Address + " " },
		"invalid utf-8":      func(r *Result) { r.Domain = "ton\xffkeeper.com" },
		"empty domain":       func(r *Result) { r.Domain = "" },
		"empty label":        func(r *Result) { r.Domain = "tonkeeper..com" },
		"oversized domain":   func(r *Result) { r.Domain = strings.Repeat("a", 63) + "." + strings.Repeat("b", 63) },
		"negative timestamp": func(r *Result) { r.Timestamp = -1 },
		"bad signature b64":  func(r *Result) { r.Signature = "@@@" },
		"short signature":    func(r *Result) { r.Signature = base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) },
		"nil payload":        func(r *Result) { r.Payload = nil },
		"bad cell base64":    func(r *Result) { r.Payload = payload.Cell{Schema: "s", Cell: "%%%"} },
		"undecodable cell": func(r *Result) {
			r.Payload = payload.Cell{Schema: "s", Cell: base64.StdEncoding.EncodeToString([]byte("junk"))}
		},
		"truncated cell": func(r *Result) {
			r.Payload = payload.Cell{Schema: "s", Cell: base64.StdEncoding.EncodeToString([]byte("\xb5\xee\x9cr100000"))}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			m := *res
			mutate(&m)
			assert.NotPanics(t, func() {
				assert.False(t, svc.VerifySignData(&m, pub))
			})
		})
	}

	assert.False(t, svc.VerifySignData(nil, pub))
	assert.False(t, svc.VerifySignData(res, nil))
	assert.False(t, svc.VerifySignData(res, []byte{1, 2, 3}))
}

func TestDecodeSignature_Canonical(t *testing.T) {
	_, priv := testKey(10)
	res, err := fixedService(testTime).Sign(Request{Payload: payload.Text{Text: "x"}, Domain: testDomain, SecretKey: priv, Address: testAddr})
	require.NoError(t, err)

	sig, err := DecodeSignature(res.Signature)
	require.NoError(t, err)
	assert.Len(t, sig, ed25519.SignatureSize)

	_, err = DecodeSignature(res.Signature[:40] + "\n" + res.Signature[40:])
	assert.Error(t, err)
	_, err = DecodeSignature(res.Signature[:40] + "\r" + res.Signature[40:])
	assert.Error(t, err)

	// "AB==" leaves unused bits set; only "AA==" spells the single zero byte.
	_, err = DecodeSignature("AB==")
	assert.Error(t, err)
	b, err := DecodeSignature("AA==")
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, b)
}

func TestVerify_RejectsRespelledSignature(t *testing.T) {
	pub, priv := testKey(11)
	svc := fixedService(testTime)
	res, err := svc.Sign(Request{Payload: payload.Text{Text: "x"}, Domain: testDomain, SecretKey: priv, Address: testAddr})
	require.NoError(t, err)
	require.True(t, svc.VerifySignData(res, pub))

	withNewline := *res
	withNewline.Signature = res.Signature[:40] + "\n" + res.Signature[40:]
	assert.False(t, svc.VerifySignData(&withNewline, pub))
}

func TestSign_Deterministic(t *testing.T) {
	_, priv := testKey(9)
	svc := fixedService(testTime)
	req := Request{Payload: payload.Text{Text: "same"}, Domain: testDomain, SecretKey: priv, Address: testAddr}

	a, err := svc.Sign(req)
	require.NoError(t, err)
	b, err := svc.Sign(req)
	require.NoError(t, err)
	assert.Equal(t, a.Signature, b.Signature)

	later, err := fixedService(testTime+1).Sign(req)
	require.NoError(t, err)
	assert.NotEqual(t, a.Signature, later.Signature)

	otherDomain := req
	otherDomain.Domain = "getgems.io"
	c, err := svc.Sign(otherDomain)
	require.NoError(t, err)
	assert.NotEqual(t, a.Signature, c.Signature)

	otherAccount := req
	otherAccount.Address = otherAddr
	d, err := svc.Sign(otherAccount)
	require.NoError(t, err)
	assert.NotEqual(t, a.Signature, d.Signature)
}

func TestSign_SchemaBinding(t *testing.T) {
	_, priv := testKey(10)
	svc := fixedService(testTime)
	blob := testCell(99)

	a, err := svc.Sign(Request{Payload: payload.Cell{Schema: "a#_ x:uint64 = A;", Cell: blob}, Domain: testDomain, SecretKey: priv, Address: testAddr})
	require.NoError(t, err)
	b, err := svc.Sign(Request{Payload: payload.Cell{Schema: "b#_ x:uint64 = B;", Cell: blob}, Domain: testDomain, SecretKey: priv, Address: testAddr})
	require.NoError(t, err)
	assert.NotEqual(t, a.Signature, b.Signature)
}

func TestSign_StageErrors(t *testing.T) {
	_, priv := testKey(11)
	svc := fixedService(testTime)

	tests := []struct {
		name  string
		req   Request
		stage Stage
		is    error
	}{
		{"address", Request{Payload: payload.Text{Text: "x"}, Domain: testDomain, SecretKey: priv, Address: "garbage"}, StageAddress, address.ErrInvalidAddress},
		{"domain", Request{Payload: payload.Text{Text: "x"}, Domain: "", SecretKey: priv, Address: testAddr}, StageDomain, dnsname.ErrEmptyName},
		{"domain too large", Request{Payload: payload.Text{Text: "x"}, Domain: strings.Repeat("a.", 64), SecretKey: priv, Address: testAddr}, StageDomain, dnsname.ErrNameTooLarge},
		{"payload", Request{Payload: payload.Cell{Schema: "s", Cell: "%%%"}, Domain: testDomain, SecretKey: priv, Address: testAddr}, StagePayload, cell.ErrInvalidCell},
		{"nil payload", Request{Domain: testDomain, SecretKey: priv, Address: testAddr}, StagePayload, payload.ErrMalformed},
		{"key", Request{Payload: payload.Text{Text: "x"}, Domain: testDomain, SecretKey: []byte{1}, Address: testAddr}, StageSign, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Sign(tt.req)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.stage, StageOf(err))
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}

	assert.Equal(t, Stage(""), StageOf(errors.New("plain")))
}

func TestSign_ReadsClockOnce(t *testing.T) {
	_, priv := testKey(12)
	calls := 0
	svc := New(WithClock(ClockFunc(func() time.Time {
		calls++
		return time.Unix(testTime, 0)
	})))

	_, err := svc.Sign(Request{Payload: payload.Text{Text: "x"}, Domain: testDomain, SecretKey: priv, Address: testAddr})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestResultJSON(t *testing.T) {
	pub, priv := testKey(13)
	svc := fixedService(testTime)

	for name, p := range testPayloads() {
		t.Run(name, func(t *testing.T) {
			res, err := svc.Sign(Request{Payload: p, Domain: testDomain, SecretKey: priv, Address: testAddr})
			require.NoError(t, err)

			data, err := json.Marshal(res)
			require.NoError(t, err)

			var raw map[string]any
			require.NoError(t, json.Unmarshal(data, &raw))
			for _, k := range []string{"signature", "address", "timestamp", "domain", "payload"} {
				assert.Contains(t, raw, k)
			}

			var back Result
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, *res, back)
			assert.True(t, svc.VerifySignData(&back, pub))
		})
	}
}

func TestResultJSON_RejectsBadPayload(t *testing.T) {
	var r Result
	err := json.Unmarshal([]byte(`{"signature":"","address":"","timestamp":1,"domain":"a","payload":{"type":"binary","bytes":"***"}}`), &r)
	require.ErrorIs(t, err, payload.ErrMalformed)
}

func TestPackageLevelDefaults(t *testing.T) {
	pub, priv := testKey(14)
	res, err := Sign(Request{Payload: payload.Text{Text: "x"}, Domain: testDomain, SecretKey: priv, Address: testAddr})
	require.NoError(t, err)
	assert.InDelta(t, time.Now().Unix(), res.Timestamp, 5)
	assert.True(t, VerifySignData(res, pub))
}

func TestService_Concurrent(t *testing.T) {
	pub, priv := testKey(15)
	svc := fixedService(testTime)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Sign(Request{Payload: payload.Binary{Bytes: []byte{byte(i)}}, Domain: testDomain, SecretKey: priv, Address: testAddr})
			if assert.NoError(t, err) {
				assert.True(t, svc.VerifySignData(res, pub))
			}
		}(i)
	}
	wg.Wait()
}

type stubParser struct{ acct address.Account }

func (p stubParser) Parse(string) (address.Account, error) { return p.acct, nil }

func TestWithAddressParser(t *testing.T) {
	pub, priv := testKey(16)
	svc := New(WithClock(FixedClock(testTime)), WithAddressParser(stubParser{}))

	res, err := svc.Sign(Request{Payload: payload.Text{Text: "x"}, Domain: testDomain, SecretKey: priv, Address: "anything"})
	require.NoError(t, err)
	assert.True(t, svc.VerifySignData(res, pub))

	// Every address text maps to the same account under this parser.
	res.Address = "something else"
	assert.True(t, svc.VerifySignData(res, pub))
}
