package store

import (
	"reflect"
	"testing"
)

func TestDedupeLast(t *testing.T) {
	tests := []struct {
		name string
		in   []KeyValue
		want []KeyValue
	}{
		{
			name: "empty",
			in:   []KeyValue{},
			want: []KeyValue{},
		},
		{
			name: "no duplicates",
			in:   []KeyValue{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}},
			want: []KeyValue{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}},
		},
		{
			name: "last pair wins",
			in: []KeyValue{
				{Key: "a", Value: []byte("1")},
				{Key: "b", Value: []byte("2")},
				{Key: "a", Value: []byte("3")},
			},
			want: []KeyValue{{Key: "b", Value: []byte("2")}, {Key: "a", Value: []byte("3")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DedupeLast(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DedupeLast() = %v, want %v", got, tt.want)
			}
		})
	}
}
