package lock

// SettlementKey locks a settlement between two members of a group. The pair is
// unordered: (a, b) and (b, a) share one lock.
func SettlementKey(groupID, a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "settlement:" + groupID + ":" + a + ":" + b
}

func ExpenseKey(groupID string) string    { return "expense:" + groupID }
func BulkExpenseKey(userID string) string { return "bulk-expense:" + userID }
func MembershipKey(groupID string) string { return "membership:" + groupID }
func BalanceKey(groupID string) string    { return "balance:" + groupID }
