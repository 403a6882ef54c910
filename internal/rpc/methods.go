package rpc

// registerAllMethods wires the full method table. Admin methods are
// gated by client IP; ReadOnly methods also answer GET ?command=
// queries.
func (s *Server) registerAllMethods() {
	// Balance and spending.
	s.registry.Register("transaction_add", &transactionAddMethod{svc: s.svc})
	s.registry.Register("balance", &balanceMethod{svc: s.svc})
	s.registry.Register("token_summary", &tokenSummaryMethod{svc: s.svc})
	s.registry.Register("credit_paid", &creditPaidMethod{svc: s.svc})
	s.registry.Register("credit_free", &creditFreeMethod{svc: s.svc})
	s.registry.Register("deduct", &deductMethod{svc: s.svc})
	s.registry.Register("transfer", &transferMethod{svc: s.svc})
	s.registry.Register("validate_sufficient", &validateSufficientMethod{svc: s.svc})

	// Hold lifecycle.
	s.registry.Register("hold_create", &holdCreateMethod{svc: s.svc})
	s.registry.Register("hold_capture", &holdCaptureMethod{svc: s.svc})
	s.registry.Register("hold_reverse", &holdReverseMethod{svc: s.svc})
	s.registry.Register("hold_extend", &holdExtendMethod{svc: s.svc})

	// Reporting.
	s.registry.Register("transaction_history", &transactionHistoryMethod{svc: s.svc})
	s.registry.Register("transaction_get", &transactionGetMethod{svc: s.svc})
	s.registry.Register("transactions_by_ref", &transactionsByRefMethod{svc: s.svc})
	s.registry.Register("tips_received", &tipsReceivedMethod{svc: s.svc})
	s.registry.Register("tips_sent", &tipsSentMethod{svc: s.svc})
	s.registry.Register("earnings", &earningsMethod{svc: s.svc})
	s.registry.Register("spending_by_ref", &spendingByRefMethod{svc: s.svc})
	s.registry.Register("expiring_tokens", &expiringTokensMethod{svc: s.svc})

	// Administration.
	s.registry.Register("admin_adjust", &adminAdjustMethod{svc: s.svc})
	s.registry.Register("expired_holds", &expiredHoldsMethod{svc: s.svc})
	s.registry.Register("process_expired", &processExpiredMethod{svc: s.svc})
	s.registry.Register("purge_records", &purgeRecordsMethod{svc: s.svc})

	// Server.
	s.registry.Register("ping", &pingMethod{})
	s.registry.Register("server_info", &serverInfoMethod{server: s})
	s.registry.Register("version", &versionMethod{server: s})
	s.registry.Register("subscribe", &subscribeMethod{})
	s.registry.Register("unsubscribe", &unsubscribeMethod{})
}
