package response

import "testing"

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	tests := []struct {
		page, perPage int
		want          []int
		totalPages    int
	}{
		{1, 2, []int{1, 2}, 3},
		{3, 2, []int{5}, 3},
		{4, 2, []int{}, 3},
		{1, 10, []int{1, 2, 3, 4, 5}, 1},
	}
	for _, tt := range tests {
		got, p := Paginate(items, tt.page, tt.perPage)
		if len(got) != len(tt.want) || p.TotalItems != 5 || p.TotalPages != tt.totalPages {
			t.Errorf("Paginate(page=%d, per=%d) = %v %+v", tt.page, tt.perPage, got, p)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Paginate(page=%d, per=%d) = %v, want %v", tt.page, tt.perPage, got, tt.want)
			}
		}
	}
}

func TestGetMessage(t *testing.T) {
	for _, code := range []ErrCode{ErrExamNotInProgress, ErrResultsNotAvailable, ErrAttemptNotOwned, ErrInternal} {
		if GetMessage(code) == GetMessage("SOMETHING_ELSE") {
			t.Errorf("%s falls back to the generic message", code)
		}
	}
}
