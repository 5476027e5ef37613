package mailbox

import "sort"

// sortMessages orders messages by sequence number, then timestamp.
func sortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		si, sj := msgs[i].Seq(), msgs[j].Seq()
		if si != sj {
			return si < sj
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
