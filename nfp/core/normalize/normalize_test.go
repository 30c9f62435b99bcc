package normalize

import (
	"errors"
	"reflect"
	"testing"
)

func TestList(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    []any
		wantErr bool
	}{
		{name: "nil becomes empty", in: nil, want: []any{}},
		{name: "list identity", in: []any{"a", "b", "c"}, want: []any{"a", "b", "c"}},
		{name: "empty list identity", in: []any{}, want: []any{}},
		{name: "empty object", in: map[string]any{}, want: []any{}},
		{
			name: "numeric keys sorted numerically",
			in:   map[string]any{"10": "k", "2": "b", "0": "a", "1": "x"},
			want: []any{"a", "x", "b", "k"},
		},
		{
			name: "sparse numeric keys keep value order",
			in:   map[string]any{"7": 3.0, "3": 1.0, "5": 2.0},
			want: []any{1.0, 2.0, 3.0},
		},
		{
			name: "plain object wrapped as single element",
			in:   map[string]any{"id": 1.0, "name": "r"},
			want: []any{map[string]any{"id": 1.0, "name": "r"}},
		},
		{
			name: "mixed keys wrapped as single element",
			in:   map[string]any{"0": "a", "name": "r"},
			want: []any{map[string]any{"0": "a", "name": "r"}},
		},
		{
			// "00" 与 "0" 会解析成同一个下标；前导零键不算下标，
			// 两个值都不能丢
			name: "leading zero key wrapped as single element",
			in:   map[string]any{"0": "a", "00": "b"},
			want: []any{map[string]any{"0": "a", "00": "b"}},
		},
		{
			name: "single leading zero key wrapped",
			in:   map[string]any{"01": "a"},
			want: []any{map[string]any{"01": "a"}},
		},
		{name: "string fails", in: "nope", wantErr: true},
		{name: "number fails", in: 42.0, wantErr: true},
		{name: "bool fails", in: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := List(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("List(%v): expected error, got %v", tt.in, got)
				}
				var te *TypeError
				if !errors.As(err, &te) {
					t.Fatalf("List(%v): error = %v, want *TypeError", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("List(%v): unexpected error %v", tt.in, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("List(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestListDeterministic(t *testing.T) {
	// map 遍历顺序随机，多跑几次确认输出稳定
	in := map[string]any{"0": "a", "1": "b", "2": "c"}
	want := []any{"a", "b", "c"}
	for i := 0; i < 50; i++ {
		got, err := List(in)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("run %d: got %v, want %v", i, got, want)
		}
	}
}

func TestInto(t *testing.T) {
	type item struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	in := map[string]any{
		"1": map[string]any{"id": 2, "name": "b"},
		"0": map[string]any{"id": 1, "name": "a"},
	}
	var out []item
	if err := Into(in, &out); err != nil {
		t.Fatalf("Into: %v", err)
	}
	want := []item{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("Into = %+v, want %+v", out, want)
	}

	var empty []item
	if err := Into(nil, &empty); err != nil {
		t.Fatalf("Into(nil): %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("Into(nil) = %+v, want empty", empty)
	}
}
