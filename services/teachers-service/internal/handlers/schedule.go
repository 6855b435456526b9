package handlers

import "sort"

func sortByStartDate(entries []scheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].StartDate, entries[j].StartDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
}
