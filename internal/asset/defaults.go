package asset

import "github.com/shopspring/decimal"

// Provider identifiers understood by the fetcher registry.
const (
	ProviderBinance       = "binance"
	ProviderCoinPaprika   = "coinpaprika"
	ProviderCryptoCompare = "cryptocompare"
	ProviderCoinGecko     = "coingecko"
	ProviderMetalPrice    = "metalprice"
	ProviderAlphaVantage  = "alphavantage"
	ProviderChainlink     = "chainlink"
)

// GoldSymbol is the symbol of the commodity feed.
const GoldSymbol = "GOLD"

var cryptoChain = []string{ProviderBinance, ProviderCoinPaprika, ProviderCryptoCompare, ProviderCoinGecko}

func crypto(symbol, name, paprika, gecko, fallback string) Descriptor {
	return Descriptor{
		Symbol:    symbol,
		Name:      name,
		Currency:  "USD",
		Category:  CategoryCrypto,
		Providers: cryptoChain,
		Refs: map[string]string{
			ProviderCoinPaprika: paprika,
			ProviderCoinGecko:   gecko,
		},
		Fallback: decimal.RequireFromString(fallback),
	}
}

// Defaults returns the built-in asset set used when no assets are configured.
func Defaults() []Descriptor {
	ton := crypto("TON", "Tokamak Network", "ton-tokamak-network", "tokamak-network", "1.42")
	// Not listed on Binance/CryptoCompare under this ticker.
	ton.Providers = []string{ProviderCoinPaprika, ProviderCoinGecko}

	out := []Descriptor{
		crypto("BTC", "Bitcoin", "btc-bitcoin", "bitcoin", "45000"),
		crypto("ETH", "Ethereum", "eth-ethereum", "ethereum", "2800"),
		crypto("XRP", "XRP", "xrp-xrp", "ripple", "0.55"),
		crypto("ADA", "Cardano", "ada-cardano", "cardano", "0.45"),
		crypto("DOT", "Polkadot", "dot-polkadot", "polkadot", "6.5"),
		crypto("LINK", "Chainlink", "link-chainlink", "chainlink", "15.5"),
		crypto("LTC", "Litecoin", "ltc-litecoin", "litecoin", "75"),
		crypto("BCH", "Bitcoin Cash", "bch-bitcoin-cash", "bitcoin-cash", "240"),
		ton,
		{
			Symbol:    GoldSymbol,
			Name:      "Gold (10g)",
			Currency:  "INR",
			Category:  CategoryCommodity,
			Providers: []string{ProviderMetalPrice, ProviderChainlink, ProviderAlphaVantage, ProviderCoinGecko},
			Refs: map[string]string{
				ProviderMetalPrice:   "XAU",
				ProviderChainlink:    "XAU",
				ProviderAlphaVantage: "XAU",
				ProviderCoinGecko:    "gold",
			},
			Fallback: decimal.NewFromInt(100885),
		},
	}
	for i := range out {
		out[i].Profile = profiles[out[i].Symbol]
	}
	return out
}

var profiles = map[string]Profile{
	"BTC": {
		LaunchDate:  "2009-01-03",
		Description: "Bitcoin is a decentralized cryptocurrency that enables peer-to-peer transactions without intermediaries.",
		Website:     "https://bitcoin.org",
		Whitepaper:  "https://bitcoin.org/bitcoin.pdf",
	},
	"ETH": {
		LaunchDate:  "2015-07-30",
		Description: "Ethereum is a decentralized platform that enables the creation of smart contracts and decentralized applications.",
		Website:     "https://ethereum.org",
		Whitepaper:  "https://ethereum.org/en/whitepaper/",
	},
	"XRP": {
		LaunchDate:  "2012-09-26",
		Description: "XRP is a digital asset designed for fast, low-cost international money transfers.",
		Website:     "https://ripple.com",
		Whitepaper:  "https://ripple.com/files/ripple_consensus_whitepaper.pdf",
	},
	"ADA": {
		LaunchDate:  "2017-10-01",
		Description: "Cardano is a blockchain platform for smart contracts, designed to be more secure and scalable.",
		Website:     "https://cardano.org",
		Whitepaper:  "https://cardano.org/static/white-paper-english.pdf",
	},
	"DOT": {
		LaunchDate:  "2020-05-26",
		Description: "Polkadot is a multi-chain network that enables different blockchains to transfer messages and value.",
		Website:     "https://polkadot.network",
		Whitepaper:  "https://polkadot.network/PolkaDotPaper.pdf",
	},
	"LINK": {
		LaunchDate:  "2017-09-19",
		Description: "Chainlink is a decentralized oracle network that connects smart contracts with real-world data.",
		Website:     "https://chainlinklabs.com",
		Whitepaper:  "https://link.smartcontract.com/whitepaper.pdf",
	},
	"LTC": {
		LaunchDate:  "2011-10-07",
		Description: "Litecoin is a peer-to-peer cryptocurrency that enables instant, near-zero cost payments.",
		Website:     "https://litecoin.org",
		Whitepaper:  "https://litecoin.org/LitecoinPaper.pdf",
	},
	"BCH": {
		LaunchDate:  "2017-08-01",
		Description: "Bitcoin Cash is a fork of Bitcoin designed to fit more transactions per block.",
		Website:     "https://bitcoincash.org",
		Whitepaper:  "https://bitcoincash.org/bitcoin.pdf",
	},
	"TON": {
		Description: "Tokamak Network is an Ethereum layer-2 platform for launching application-specific rollups.",
		Website:     "https://tokamak.network",
	},
	GoldSymbol: {
		LaunchDate:  "Ancient times",
		Description: "Gold is a precious metal that has been used as a store of value and medium of exchange for thousands of years.",
		Website:     "https://www.gold.org",
	},
}
