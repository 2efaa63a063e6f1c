package exchange

import "testing"

func TestSymbolNormalization(t *testing.T) {
	cases := []struct {
		in, data, trading string
	}{
		{"BTC/USD", "BTC/USD", "BTCUSD"},
		{"btcusd", "BTC/USD", "BTCUSD"},
		{"eth-usdt", "ETH/USDT", "ETHUSDT"},
		{" sol_usd ", "SOL/USD", "SOLUSD"},
		{"DOGE", "DOGE", "DOGE"},
	}
	for _, tc := range cases {
		if got := DataSymbol(tc.in); got != tc.data {
			t.Fatalf("DataSymbol(%q): expected %s got %s", tc.in, tc.data, got)
		}
		if got := TradingSymbol(tc.in); got != tc.trading {
			t.Fatalf("TradingSymbol(%q): expected %s got %s", tc.in, tc.trading, got)
		}
	}
}

func TestCredentialsEmpty(t *testing.T) {
	if !(Credentials{KeyID: "k"}).Empty() {
		t.Fatal("expected missing secret to be empty")
	}
	if (Credentials{KeyID: "k", SecretKey: "s"}).Empty() {
		t.Fatal("expected full pair to be non-empty")
	}
}
