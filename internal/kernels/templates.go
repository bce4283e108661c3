package kernels

import (
	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/accel"
)

// Program describes a kernel template: its entry points and operator placeholders.
type Program struct {
	Name         string
	Entries      []string
	Placeholders []string
	sources      map[accel.Dialect]string
}

// Source returns the template text of the program for a dialect.
func (p *Program) Source(d accel.Dialect) (string, error) {
	src, ok := p.sources[d]
	if !ok {
		return "", errors.Errorf("kernels: no %s source for program %s", d, p.Name)
	}
	return src, nil
}

var programs = map[string]*Program{
	ExtractRow: {
		Name:         ExtractRow,
		Entries:      []string{"extract_row"},
		Placeholders: []string{OpApply},
		sources:      map[accel.Dialect]string{accel.DialectHost: hostExtractRow, accel.DialectWGSL: wgslExtractRow},
	},
	Map: {
		Name:         Map,
		Entries:      []string{"map"},
		Placeholders: []string{OpApply},
		sources:      map[accel.Dialect]string{accel.DialectHost: hostMap, accel.DialectWGSL: wgslMap},
	},
	EAdd: {
		Name:         EAdd,
		Entries:      []string{"eadd"},
		Placeholders: []string{OpBinary},
		sources:      map[accel.Dialect]string{accel.DialectHost: hostEAdd, accel.DialectWGSL: wgslEAdd},
	},
	Reduce: {
		Name:         Reduce,
		Entries:      []string{"reduce"},
		Placeholders: []string{OpReduce},
		sources:      map[accel.Dialect]string{accel.DialectHost: hostReduce, accel.DialectWGSL: wgslReduce},
	},
	MxV: {
		Name:         MxV,
		Entries:      []string{"mxv"},
		Placeholders: []string{OpMultiply, OpReduce},
		sources:      map[accel.Dialect]string{accel.DialectHost: hostMxV, accel.DialectWGSL: wgslMxV},
	},
	ReduceByRow: {
		Name:         ReduceByRow,
		Entries:      []string{"reduce_by_row"},
		Placeholders: []string{OpReduce},
		sources:      map[accel.Dialect]string{accel.DialectHost: hostReduceByRow, accel.DialectWGSL: wgslReduceByRow},
	},
}

// Lookup returns the kernel program template registered under name.
func Lookup(name string) (*Program, bool) {
	p, ok := programs[name]
	return p, ok
}

// Host dialect sources. The software accelerator binds every "kernel" line to
// a host kernel factory; the other lines record the specialization.

const hostExtractRow = `program m_extract_row
type {{.TYPE}}
wgs {{.WORKGROUP_SIZE}}
op OP_APPLY {{.OP_APPLY}}
kernel extract_row
`

const hostMap = `program v_map
type {{.TYPE}}
wgs {{.WORKGROUP_SIZE}}
op OP_APPLY {{.OP_APPLY}}
kernel map
`

const hostEAdd = `program v_eadd
type {{.TYPE}}
wgs {{.WORKGROUP_SIZE}}
op OP_BINARY {{.OP_BINARY}}
kernel eadd
`

const hostReduce = `program v_reduce
type {{.TYPE}}
wgs {{.WORKGROUP_SIZE}}
op OP_REDUCE {{.OP_REDUCE}}
kernel reduce
`

const hostMxV = `program mxv
type {{.TYPE}}
wgs {{.WORKGROUP_SIZE}}
op OP_MULTIPLY {{.OP_MULTIPLY}}
op OP_REDUCE {{.OP_REDUCE}}
kernel mxv
`

const hostReduceByRow = `program m_reduce_by_row
type {{.TYPE}}
wgs {{.WORKGROUP_SIZE}}
op OP_REDUCE {{.OP_REDUCE}}
kernel reduce_by_row
`

// WGSL sources. Buffer arguments bind at their argument index; scalar
// arguments live in params[2+index], with params[0] holding the global
// offset and params[1] the global size of the launch.

// wgslExtractRow writes r[Aj[k]] = OP_APPLY(Ax[k]) for k in [offset, end).
const wgslExtractRow = `
@group(0) @binding(0) var<storage, read_write> r: array<{{.TYPE}}>;
@group(0) @binding(1) var<storage, read> Ax: array<{{.TYPE}}>;
@group(0) @binding(2) var<storage, read> Aj: array<u32>;
@group(0) @binding(8) var<storage, read> params: array<u32>;

fn op_apply(a: {{.TYPE}}) -> {{.TYPE}} {
    return {{.OP_APPLY}};
}

@compute @workgroup_size({{.WORKGROUP_SIZE}})
fn extract_row(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let end = params[5];
    for (var k = params[0] + global_id.x; k < end; k = k + params[1]) {
        r[Aj[k]] = op_apply(Ax[k]);
    }
}
`

// wgslMap writes r[i] = OP_APPLY(v[i]) for i < n.
const wgslMap = `
@group(0) @binding(0) var<storage, read_write> r: array<{{.TYPE}}>;
@group(0) @binding(1) var<storage, read> v: array<{{.TYPE}}>;
@group(0) @binding(8) var<storage, read> params: array<u32>;

fn op_apply(a: {{.TYPE}}) -> {{.TYPE}} {
    return {{.OP_APPLY}};
}

@compute @workgroup_size({{.WORKGROUP_SIZE}})
fn map(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let n = params[4];
    for (var i = params[0] + global_id.x; i < n; i = i + params[1]) {
        r[i] = op_apply(v[i]);
    }
}
`

// wgslEAdd writes r[i] = OP_BINARY(a[i], b[i]) for i < n.
const wgslEAdd = `
@group(0) @binding(0) var<storage, read_write> r: array<{{.TYPE}}>;
@group(0) @binding(1) var<storage, read> x: array<{{.TYPE}}>;
@group(0) @binding(2) var<storage, read> y: array<{{.TYPE}}>;
@group(0) @binding(8) var<storage, read> params: array<u32>;

fn op_binary(a: {{.TYPE}}, b: {{.TYPE}}) -> {{.TYPE}} {
    return {{.OP_BINARY}};
}

@compute @workgroup_size({{.WORKGROUP_SIZE}})
fn eadd(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let n = params[5];
    for (var i = params[0] + global_id.x; i < n; i = i + params[1]) {
        r[i] = op_binary(x[i], y[i]);
    }
}
`

// wgslReduce folds v[0:n] into one partial per work-group. flags[g] is 1 when
// group g saw at least one element.
const wgslReduce = `
@group(0) @binding(0) var<storage, read_write> partials: array<{{.TYPE}}>;
@group(0) @binding(1) var<storage, read_write> flags: array<u32>;
@group(0) @binding(2) var<storage, read> v: array<{{.TYPE}}>;
@group(0) @binding(8) var<storage, read> params: array<u32>;

var<workgroup> acc: array<{{.TYPE}}, {{.WORKGROUP_SIZE}}>;
var<workgroup> has: array<u32, {{.WORKGROUP_SIZE}}>;

fn op_reduce(a: {{.TYPE}}, b: {{.TYPE}}) -> {{.TYPE}} {
    return {{.OP_REDUCE}};
}

@compute @workgroup_size({{.WORKGROUP_SIZE}})
fn reduce(
    @builtin(global_invocation_id) global_id: vec3<u32>,
    @builtin(local_invocation_id) local_id: vec3<u32>,
    @builtin(workgroup_id) workgroup_id: vec3<u32>
) {
    let tid = local_id.x;
    let n = params[5];
    var sum: {{.TYPE}};
    var seen = 0u;
    for (var i = params[0] + global_id.x; i < n; i = i + params[1]) {
        if (seen == 0u) {
            sum = v[i];
        } else {
            sum = op_reduce(sum, v[i]);
        }
        seen = 1u;
    }
    acc[tid] = sum;
    has[tid] = seen;
    workgroupBarrier();

    for (var s: u32 = {{.WORKGROUP_SIZE}}u / 2u; s > 0u; s = s >> 1u) {
        if (tid < s && has[tid + s] != 0u) {
            if (has[tid] != 0u) {
                acc[tid] = op_reduce(acc[tid], acc[tid + s]);
            } else {
                acc[tid] = acc[tid + s];
            }
            has[tid] = 1u;
        }
        workgroupBarrier();
    }

    if (tid == 0u) {
        partials[workgroup_id.x] = acc[0];
        flags[workgroup_id.x] = has[0];
    }
}
`

// wgslMxV computes r[row] = init OP_REDUCE (Ax[k] OP_MULTIPLY v[Aj[k]]) over the row.
const wgslMxV = `
@group(0) @binding(0) var<storage, read_write> r: array<{{.TYPE}}>;
@group(0) @binding(1) var<storage, read> Ap: array<u32>;
@group(0) @binding(2) var<storage, read> Aj: array<u32>;
@group(0) @binding(3) var<storage, read> Ax: array<{{.TYPE}}>;
@group(0) @binding(4) var<storage, read> v: array<{{.TYPE}}>;
@group(0) @binding(8) var<storage, read> params: array<u32>;

fn op_multiply(a: {{.TYPE}}, b: {{.TYPE}}) -> {{.TYPE}} {
    return {{.OP_MULTIPLY}};
}

fn op_reduce(a: {{.TYPE}}, b: {{.TYPE}}) -> {{.TYPE}} {
    return {{.OP_REDUCE}};
}

@compute @workgroup_size({{.WORKGROUP_SIZE}})
fn mxv(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let nrows = params[7];
    let init = bitcast<{{.TYPE}}>(params[8]);
    for (var row = params[0] + global_id.x; row < nrows; row = row + params[1]) {
        var sum = init;
        for (var k = Ap[row]; k < Ap[row + 1u]; k = k + 1u) {
            sum = op_reduce(sum, op_multiply(Ax[k], v[Aj[k]]));
        }
        r[row] = sum;
    }
}
`

// wgslReduceByRow computes r[row] = init OP_REDUCE Ax[k] over the row.
const wgslReduceByRow = `
@group(0) @binding(0) var<storage, read_write> r: array<{{.TYPE}}>;
@group(0) @binding(1) var<storage, read> Ap: array<u32>;
@group(0) @binding(2) var<storage, read> Ax: array<{{.TYPE}}>;
@group(0) @binding(8) var<storage, read> params: array<u32>;

fn op_reduce(a: {{.TYPE}}, b: {{.TYPE}}) -> {{.TYPE}} {
    return {{.OP_REDUCE}};
}

@compute @workgroup_size({{.WORKGROUP_SIZE}})
fn reduce_by_row(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let nrows = params[5];
    let init = bitcast<{{.TYPE}}>(params[6]);
    for (var row = params[0] + global_id.x; row < nrows; row = row + params[1]) {
        var sum = init;
        for (var k = Ap[row]; k < Ap[row + 1u]; k = k + 1u) {
            sum = op_reduce(sum, Ax[k]);
        }
        r[row] = sum;
    }
}
`
