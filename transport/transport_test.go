package transport

import "testing"

func TestBatchResponse_Validate(t *testing.T) {
	req := &BatchRequest{
		DeviceID: "dev-1",
		Operations: []WireOperation{
			{ID: "op-1", Kind: KindCreate},
			{ID: "op-2", Kind: KindUpdate},
		},
	}

	tests := []struct {
		name    string
		resp    BatchResponse
		wantErr bool
	}{
		{
			name: "matching results",
			resp: BatchResponse{Results: []WireResult{
				{OperationID: "op-1", Success: true},
				{OperationID: "op-2", Success: true},
			}},
		},
		{
			name:    "length mismatch",
			resp:    BatchResponse{Results: []WireResult{{OperationID: "op-1"}}},
			wantErr: true,
		},
		{
			name: "order mismatch",
			resp: BatchResponse{Results: []WireResult{
				{OperationID: "op-2"},
				{OperationID: "op-1"},
			}},
			wantErr: true,
		},
		{
			name: "unknown operation id",
			resp: BatchResponse{Results: []WireResult{
				{OperationID: "op-1"},
				{OperationID: "op-9"},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.resp.Validate(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
