package state

var (
	campaignRecordPrefix     = []byte("crowdfund/campaign/")
	campaignIndexKey         = []byte("crowdfund/index")
	campaignNoncePrefix      = []byte("crowdfund/nonce/")
	campaignIDDomain         = []byte("crowdfund/campaign")
	contributionRecordPrefix = []byte("crowdfund/contribution/")
	contributorIndexPrefix   = []byte("crowdfund/contributors/")
	balancePrefix            = []byte("bank/balance/")
	genesisMarkerKey         = []byte("genesis/applied")
)

func prefixed(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return buf
}
