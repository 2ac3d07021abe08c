package llmstream

import "testing"

func TestRepairPartialJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already closed", `{"a":1}`, `{"a":1}`},
		{"unterminated string", `{"a":"b`, `{"a":"b"}`},
		{"unterminated object", `{"a":1`, `{"a":1}`},
		{"nested unterminated", `{"a":{"b":1`, `{"a":{"b":1}}`},
		{"unterminated array", `{"a":[1,2`, `{"a":[1,2]}`},
		{"escaped quote inside string not closed early", `{"a":"b\"c`, `{"a":"b\"c"}`},
		{"empty input", ``, ``},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := string(repairPartialJSON([]byte(tc.in)))
			if got != tc.want {
				t.Errorf("repairPartialJSON(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRepairPartialJSONProducesValidJSON(t *testing.T) {
	truncations := []string{
		`{"path":"/a/b.txt","content":"line one\nline two`,
		`{"children":[{"prompt":"do x"`,
		`{"nested":{"deep":{"value":[1,2,3`,
	}
	for _, in := range truncations {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			repaired := repairPartialJSON([]byte(in))
			if !isValidObject(repaired) {
				t.Errorf("repairPartialJSON(%q) = %q, not valid JSON", in, repaired)
			}
		})
	}
}

func TestFinalizeArgumentsEmptyYieldsEmptyObject(t *testing.T) {
	objs, dropped := finalizeArguments([]byte("   "))
	if dropped {
		t.Fatal("expected not dropped")
	}
	if len(objs) != 1 || objs[0] != "{}" {
		t.Fatalf("got %v", objs)
	}
}

func TestFinalizeArgumentsValidObjectPassesThrough(t *testing.T) {
	objs, dropped := finalizeArguments([]byte(`{"a":1}`))
	if dropped {
		t.Fatal("expected not dropped")
	}
	if len(objs) != 1 || objs[0] != `{"a":1}` {
		t.Fatalf("got %v", objs)
	}
}

func TestFinalizeArgumentsRepairsTruncation(t *testing.T) {
	objs, dropped := finalizeArguments([]byte(`{"path":"/a.txt"`))
	if dropped {
		t.Fatal("expected not dropped")
	}
	if len(objs) != 1 {
		t.Fatalf("got %v", objs)
	}
	if !isValidObject([]byte(objs[0])) {
		t.Fatalf("result not valid JSON: %s", objs[0])
	}
}

func TestFinalizeArgumentsWrapsConcatenatedObjectsAndDedups(t *testing.T) {
	objs, dropped := finalizeArguments([]byte(`{"a":1}{"a":1}`))
	if dropped {
		t.Fatal("expected not dropped")
	}
	if len(objs) != 1 {
		t.Fatalf("expected dedup to a single object, got %v", objs)
	}
	if objs[0] != `{"a":1}` {
		t.Fatalf("got %q", objs[0])
	}
}

func TestFinalizeArgumentsWrapsDistinctConcatenatedObjects(t *testing.T) {
	objs, dropped := finalizeArguments([]byte(`{"a":1}{"a":2}`))
	if dropped {
		t.Fatal("expected not dropped")
	}
	if len(objs) != 2 {
		t.Fatalf("expected two distinct objects, got %v", objs)
	}
}

func TestFinalizeArgumentsUnrecoverableIsDropped(t *testing.T) {
	_, dropped := finalizeArguments([]byte(`not json at all }{{`))
	if !dropped {
		t.Fatal("expected dropped")
	}
}

func TestWrapConcatenatedObjects(t *testing.T) {
	got := string(wrapConcatenatedObjects([]byte(`{"a":1}{"a":1}`)))
	want := `[{"a":1},{"a":1}]`
	if got != want {
		t.Errorf("wrapConcatenatedObjects = %q, want %q", got, want)
	}
}
